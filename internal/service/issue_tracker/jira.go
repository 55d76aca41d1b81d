package issue_tracker

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxErrorBody = 512

type JiraConfig struct {
	BaseURL    string
	APIVersion string
	Username   string
	Password   string
	Timeout    time.Duration

	// HTTPClient overrides the default client, mostly for tests.
	HTTPClient *http.Client
}

type jiraClient struct {
	baseURL       string
	apiVersion    string
	authorization string
	http          *http.Client
	recorder      Recorder
}

// NewJiraClient builds an IssueTracker for the Jira REST API. Every request
// is reported to recorder; pass nil to skip recording.
func NewJiraClient(cfg JiraConfig, recorder Recorder) (IssueTracker, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("jira: empty base url")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("jira: missing credentials for authorization header")
	}

	version := cfg.APIVersion
	if version == "" {
		version = "2"
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &jiraClient{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiVersion:    version,
		authorization: EncodeBasicAuth(cfg.Username, cfg.Password),
		http:          httpClient,
		recorder:      recorder,
	}, nil
}

// EncodeBasicAuth builds the Authorization header value for a username/password pair.
func EncodeBasicAuth(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

func (c *jiraClient) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	if params.JQL == "" {
		return nil, errors.New("jira: empty jql")
	}
	body := map[string]any{"jql": params.JQL}
	if params.MaxResults > 0 {
		body["maxResults"] = params.MaxResults
	}

	var out SearchResult
	if err := c.doJSON(ctx, http.MethodPost, c.apiURL("search"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *jiraClient) Issue(ctx context.Context, key string) (*Issue, error) {
	if key == "" {
		return nil, errors.New("jira: empty issue key")
	}
	var out Issue
	if err := c.doJSON(ctx, http.MethodGet, c.IssueURL(key), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *jiraClient) Worklog(ctx context.Context, key string) (*WorklogPage, error) {
	if key == "" {
		return nil, errors.New("jira: empty issue key")
	}
	var out WorklogPage
	if err := c.doJSON(ctx, http.MethodGet, c.WorklogURL(key), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *jiraClient) IssueURL(key string) string {
	return c.apiURL("issue/" + url.PathEscape(key))
}

func (c *jiraClient) WorklogURL(key string) string {
	return c.apiURL("issue/" + url.PathEscape(key) + "/worklog")
}

func (c *jiraClient) apiURL(path string) string {
	return c.baseURL + "/rest/api/" + c.apiVersion + "/" + path
}

func (c *jiraClient) doJSON(ctx context.Context, method, uri string, body any, out any) (err error) {
	start := time.Now()
	status := 0
	defer func() {
		c.recorder.Network(ctx, method, uri, status, time.Since(start), err)
	}()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("jira: encoding request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, uri, r)
	if err != nil {
		return fmt.Errorf("jira: building request: %w", err)
	}
	req.Header.Set("Authorization", c.authorization)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Method: method, URI: uri, Err: err}
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &ProtocolError{
			Method:     method,
			URI:        uri,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(b)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Method: method, URI: uri, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}
