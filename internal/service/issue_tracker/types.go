package issue_tracker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the tracker's timestamp format, e.g. 2016-10-25T14:03:12.000-0500.
const TimeLayout = "2006-01-02T15:04:05.000-0700"

type SearchResult struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}

type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Fields IssueFields `json:"fields"`
}

type User struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
}

type Project struct {
	Key  string `json:"key"`
	Name string `json:"name,omitempty"`
}

type Named struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type LinkType struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Inward  string `json:"inward,omitempty"`
	Outward string `json:"outward,omitempty"`
}

type IssueLink struct {
	ID           string    `json:"id,omitempty"`
	Type         *LinkType `json:"type,omitempty"`
	InwardIssue  *Issue    `json:"inwardIssue,omitempty"`
	OutwardIssue *Issue    `json:"outwardIssue,omitempty"`
}

// Target returns the issue on the other end of the link.
func (l IssueLink) Target() *Issue {
	if l.OutwardIssue != nil {
		return l.OutwardIssue
	}
	return l.InwardIssue
}

// IssueFields holds the standard fields by name plus every raw field by id,
// so custom fields can be looked up from configuration.
type IssueFields struct {
	Summary        string      `json:"summary"`
	Status         *Named      `json:"status,omitempty"`
	IssueType      *Named      `json:"issuetype,omitempty"`
	Reporter       *User       `json:"reporter,omitempty"`
	Project        *Project    `json:"project,omitempty"`
	Created        string      `json:"created,omitempty"`
	ResolutionDate *string     `json:"resolutiondate,omitempty"`
	Resolution     *Named      `json:"resolution,omitempty"`
	IssueLinks     []IssueLink `json:"issuelinks,omitempty"`

	Raw map[string]json.RawMessage `json:"-"`
}

func (f *IssueFields) UnmarshalJSON(data []byte) error {
	type alias IssueFields
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = IssueFields(a)
	f.Raw = raw
	return nil
}

func (f IssueFields) ReporterName() string {
	if f.Reporter == nil {
		return ""
	}
	return f.Reporter.Name
}

func (f IssueFields) ProjectKey() string {
	if f.Project == nil {
		return ""
	}
	return f.Project.Key
}

func (f IssueFields) StatusName() string {
	if f.Status == nil {
		return ""
	}
	return f.Status.Name
}

func (f IssueFields) IssueTypeName() string {
	if f.IssueType == nil {
		return ""
	}
	return f.IssueType.Name
}

func (f IssueFields) ResolutionName() string {
	if f.Resolution == nil {
		return ""
	}
	return f.Resolution.Name
}

// UserName returns the .name of a user-valued custom field, or "" when the
// field is absent, null, or not a user.
func (f IssueFields) UserName(fieldID string) string {
	raw, ok := f.Raw[fieldID]
	if !ok || isNull(raw) {
		return ""
	}
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return ""
	}
	return u.Name
}

// Number returns a numeric custom field. Absent and null fields return nil.
// Numeric strings are accepted since some deployments store estimates as text.
func (f IssueFields) Number(fieldID string) (*float64, error) {
	raw, ok := f.Raw[fieldID]
	if !ok || isNull(raw) {
		return nil, nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return &n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("field %s: not a number: %s", fieldID, string(raw))
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", fieldID, err)
	}
	return &n, nil
}

type WorklogPage struct {
	StartAt    int       `json:"startAt"`
	MaxResults int       `json:"maxResults"`
	Total      int       `json:"total"`
	Worklogs   []Worklog `json:"worklogs"`
}

type Worklog struct {
	ID               string `json:"id"`
	Author           *User  `json:"author,omitempty"`
	TimeSpentSeconds int64  `json:"timeSpentSeconds"`
	Started          string `json:"started,omitempty"`
}

func (w Worklog) AuthorName() string {
	if w.Author == nil {
		return ""
	}
	return w.Author.Name
}

// ParseTime parses a tracker timestamp. Empty input returns nil.
func ParseTime(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{TimeLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized timestamp %q", s)
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
