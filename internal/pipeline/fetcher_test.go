package pipeline_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"feasibility.app/etl/internal/model"
	"feasibility.app/etl/internal/pipeline"
	"feasibility.app/etl/internal/service/issue_tracker"
)

var _ = Describe("PrimaryFetcher", func() {
	var (
		ctx     context.Context
		tracker *mockTracker
		fetcher *pipeline.PrimaryFetcher
	)

	BeforeEach(func() {
		ctx = context.Background()
		tracker = &mockTracker{}
		fetcher = pipeline.NewPrimaryFetcher(tracker, testFields)
	})

	It("passes the search parameters through", func() {
		tracker.searchFn = func(_ context.Context, params issue_tracker.SearchParams) (*issue_tracker.SearchResult, error) {
			Expect(params.JQL).To(Equal("project = FEAS"))
			Expect(params.MaxResults).To(Equal(25))
			return &issue_tracker.SearchResult{}, nil
		}

		set, pending, err := fetcher.Fetch(ctx, issue_tracker.SearchParams{JQL: "project = FEAS", MaxResults: 25})
		Expect(err).NotTo(HaveOccurred())
		Expect(set).To(BeEmpty())
		Expect(pending).To(BeEmpty())
	})

	It("builds records and queues one worklog fetch per record plus two per link", func() {
		issue := newIssue("FEAS-1", "DEV-1", "DEV-2")
		issue.Fields.Raw["customfield_12501"] = []byte(`{"name":"reviewer"}`)
		issue = withEstimate(issue, "customfield_14600", "1.5")
		issue = withEstimate(issue, "customfield_14601", `"2"`)
		tracker.searchFn = searchReturning(issue, newIssue("FEAS-2"))

		set, pending, err := fetcher.Fetch(ctx, issue_tracker.SearchParams{JQL: "x"})
		Expect(err).NotTo(HaveOccurred())
		Expect(set).To(HaveLen(2))

		rec := set["FEAS-1"]
		Expect(rec.Summary).To(Equal("Feasibility FEAS-1"))
		Expect(rec.Reviewer).To(Equal("reviewer"))
		Expect(rec.Reporter).To(Equal("reporter"))
		Expect(rec.Project).To(Equal("FEAS"))
		Expect(rec.Created).NotTo(BeNil())
		Expect(rec.Estimates.Unit).To(Equal(model.EstimateUnitHours))
		Expect(*rec.Estimates.Development).To(Equal(1.5))
		Expect(*rec.Estimates.QA).To(Equal(2.0))
		Expect(rec.Estimates.Design).To(BeNil())

		Expect(rec.Links).To(HaveLen(2))
		Expect(rec.Links["DEV-1"].Summary).To(Equal("Linked DEV-1"))
		Expect(rec.Links["DEV-1"].Status).To(Equal("Open"))
		Expect(set["FEAS-2"].Links).To(BeNil())

		Expect(pending).To(ConsistOf(
			model.FetchDescriptor{Kind: model.FetchKindWorklog, Key: "FEAS-1"},
			model.FetchDescriptor{Kind: model.FetchKindWorklog, Key: "DEV-1", Grandparent: "FEAS-1"},
			model.FetchDescriptor{Kind: model.FetchKindIssueDetail, Key: "DEV-1", Grandparent: "FEAS-1"},
			model.FetchDescriptor{Kind: model.FetchKindWorklog, Key: "DEV-2", Grandparent: "FEAS-1"},
			model.FetchDescriptor{Kind: model.FetchKindIssueDetail, Key: "DEV-2", Grandparent: "FEAS-1"},
			model.FetchDescriptor{Kind: model.FetchKindWorklog, Key: "FEAS-2"},
		))
	})

	It("ignores links of any other type", func() {
		issue := newIssue("FEAS-1", "DEV-1")
		issue.Fields.IssueLinks[0].Type.ID = "10000"
		tracker.searchFn = searchReturning(issue)

		set, pending, err := fetcher.Fetch(ctx, issue_tracker.SearchParams{JQL: "x"})
		Expect(err).NotTo(HaveOccurred())
		Expect(set["FEAS-1"].Links).To(BeNil())
		Expect(pending).To(HaveLen(1))
	})

	It("uses the inward issue when there is no outward one", func() {
		issue := newIssue("FEAS-1", "DEV-1")
		link := &issue.Fields.IssueLinks[0]
		link.InwardIssue, link.OutwardIssue = link.OutwardIssue, nil
		tracker.searchFn = searchReturning(issue)

		set, _, err := fetcher.Fetch(ctx, issue_tracker.SearchParams{JQL: "x"})
		Expect(err).NotTo(HaveOccurred())
		Expect(set["FEAS-1"].Links).To(HaveKey("DEV-1"))
	})

	It("treats an unreadable estimate as unset", func() {
		issue := withEstimate(newIssue("FEAS-1"), "customfield_14604", `"lots"`)
		tracker.searchFn = searchReturning(issue)

		set, _, err := fetcher.Fetch(ctx, issue_tracker.SearchParams{JQL: "x"})
		Expect(err).NotTo(HaveOccurred())
		Expect(set["FEAS-1"].Estimates.Design).To(BeNil())
	})

	It("keeps the first of duplicate keys", func() {
		first := newIssue("FEAS-1")
		second := newIssue("FEAS-1")
		second.Fields.Summary = "duplicate"
		tracker.searchFn = searchReturning(first, second)

		set, pending, err := fetcher.Fetch(ctx, issue_tracker.SearchParams{JQL: "x"})
		Expect(err).NotTo(HaveOccurred())
		Expect(set).To(HaveLen(1))
		Expect(set["FEAS-1"].Summary).To(Equal("Feasibility FEAS-1"))
		Expect(pending).To(HaveLen(1))
	})

	It("fails the fetch when the search fails", func() {
		tracker.searchFn = func(context.Context, issue_tracker.SearchParams) (*issue_tracker.SearchResult, error) {
			return nil, &issue_tracker.ProtocolError{Method: "POST", URI: "http://jira/rest/api/2/search", StatusCode: 500}
		}

		set, _, err := fetcher.Fetch(ctx, issue_tracker.SearchParams{JQL: "x"})
		Expect(set).To(BeNil())

		var protoErr *issue_tracker.ProtocolError
		Expect(errors.As(err, &protoErr)).To(BeTrue())
		Expect(protoErr.StatusCode).To(Equal(500))
	})
})
