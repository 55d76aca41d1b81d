package pipeline_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"feasibility.app/etl/internal/model"
	"feasibility.app/etl/internal/pipeline"
)

var _ = Describe("Transform", func() {
	var rec *model.PrimaryRecord

	BeforeEach(func() {
		rec = &model.PrimaryRecord{
			Key:       "FEAS-1",
			Estimates: model.Estimates{Unit: model.EstimateUnitHours},
		}
	})

	linkWithWorklog := func(key string, total int64) *model.LinkedRecord {
		l := &model.LinkedRecord{Key: key}
		if total > 0 {
			l.Worklog = &model.WorklogAggregate{
				Entries: []model.WorklogEntry{{Timespent: total, Unit: model.WorklogUnitSeconds}},
				Total:   total,
			}
		}
		return l
	}

	Describe("estimate conversion", func() {
		DescribeTable("converts 1.5 hours to 5400 seconds in every field",
			func(slot func(*model.Estimates) **float64) {
				*slot(&rec.Estimates) = float(1.5)

				d, err := pipeline.Derive(rec)

				Expect(err).NotTo(HaveOccurred())
				Expect(**slot(&d.Record.Estimates)).To(Equal(5400.0))
				Expect(d.EstimateTotal).To(Equal(5400.0))
				Expect(d.Record.Estimates.Unit).To(Equal(model.EstimateUnitSeconds))
			},
			Entry("design", func(e *model.Estimates) **float64 { return &e.Design }),
			Entry("development", func(e *model.Estimates) **float64 { return &e.Development }),
			Entry("development pad", func(e *model.Estimates) **float64 { return &e.DevelopmentPad }),
			Entry("pe", func(e *model.Estimates) **float64 { return &e.PE }),
			Entry("pm", func(e *model.Estimates) **float64 { return &e.PM }),
			Entry("qa", func(e *model.Estimates) **float64 { return &e.QA }),
		)

		It("stores a missing estimate as 0 and adds nothing to the total", func() {
			rec.Estimates.Development = float(2)

			d, err := pipeline.Derive(rec)

			Expect(err).NotTo(HaveOccurred())
			Expect(d.Record.Estimates.Design).NotTo(BeNil())
			Expect(*d.Record.Estimates.Design).To(BeZero())
			Expect(*d.Record.Estimates.QA).To(BeZero())
			Expect(d.EstimateTotal).To(Equal(7200.0))
		})

		It("does not modify the input record", func() {
			rec.Estimates.Development = float(2)

			_, err := pipeline.Derive(rec)

			Expect(err).NotTo(HaveOccurred())
			Expect(*rec.Estimates.Development).To(Equal(2.0))
			Expect(rec.Estimates.Design).To(BeNil())
			Expect(rec.Estimates.Unit).To(Equal(model.EstimateUnitHours))
		})

		It("never converts an already converted record twice", func() {
			rec.Estimates.Development = float(2)
			rec.Links = map[string]*model.LinkedRecord{"DEV-1": linkWithWorklog("DEV-1", 3600)}

			first, err := pipeline.Derive(rec)
			Expect(err).NotTo(HaveOccurred())

			second, err := pipeline.Derive(first.Record)
			Expect(err).NotTo(HaveOccurred())

			Expect(*second.Record.Estimates.Development).To(Equal(7200.0))
			Expect(second.EstimateTotal).To(Equal(first.EstimateTotal))
			Expect(*second.Delta).To(Equal(*first.Delta))
		})
	})

	Describe("linked timespent", func() {
		It("sums the linked worklog totals, counting links without a worklog as 0", func() {
			rec.Links = map[string]*model.LinkedRecord{
				"DEV-1": linkWithWorklog("DEV-1", 1800),
				"DEV-2": linkWithWorklog("DEV-2", 3600),
				"DEV-3": linkWithWorklog("DEV-3", 0),
			}

			d, err := pipeline.Derive(rec)

			Expect(err).NotTo(HaveOccurred())
			Expect(*d.LinkedTimespent).To(Equal(int64(5400)))
		})

		It("is nil when the record has no links", func() {
			d, err := pipeline.Derive(rec)

			Expect(err).NotTo(HaveOccurred())
			Expect(d.LinkedTimespent).To(BeNil())
			Expect(d.LinksJSON).To(BeNil())
		})
	})

	Describe("delta", func() {
		It("compares the converted estimate against the linked timespent", func() {
			rec.Estimates.Development = float(2)
			rec.Links = map[string]*model.LinkedRecord{"DEV-1": linkWithWorklog("DEV-1", 3600)}

			d, err := pipeline.Derive(rec)

			Expect(err).NotTo(HaveOccurred())
			Expect(d.EstimateTotal).To(Equal(7200.0))
			Expect(*d.Delta).To(Equal(3600.0))
			Expect(*d.DeltaPercentage).To(BeNumerically("~", 66.67, 0.01))
		})

		It("is null when the linked timespent is 0", func() {
			rec.Estimates.Development = float(2)
			rec.Links = map[string]*model.LinkedRecord{"DEV-1": linkWithWorklog("DEV-1", 0)}

			d, err := pipeline.Derive(rec)

			Expect(err).NotTo(HaveOccurred())
			Expect(*d.LinkedTimespent).To(BeZero())
			Expect(d.Delta).To(BeNil())
			Expect(d.DeltaPercentage).To(BeNil())
		})

		It("is null when there is no estimate", func() {
			rec.Links = map[string]*model.LinkedRecord{"DEV-1": linkWithWorklog("DEV-1", 3600)}

			d, err := pipeline.Derive(rec)

			Expect(err).NotTo(HaveOccurred())
			Expect(d.Delta).To(BeNil())
			Expect(d.DeltaPercentage).To(BeNil())
		})

		It("can be negative", func() {
			rec.Estimates.QA = float(1)
			rec.Links = map[string]*model.LinkedRecord{"DEV-1": linkWithWorklog("DEV-1", 10800)}

			d, err := pipeline.Derive(rec)

			Expect(err).NotTo(HaveOccurred())
			Expect(*d.Delta).To(Equal(-7200.0))
			Expect(*d.DeltaPercentage).To(Equal(-100.0))
		})

		It("leaves both null when a negative estimate cancels the linked time", func() {
			rec.Estimates.QA = float(-1)
			rec.Links = map[string]*model.LinkedRecord{"DEV-1": linkWithWorklog("DEV-1", 3600)}

			d, err := pipeline.Derive(rec)

			Expect(err).NotTo(HaveOccurred())
			Expect(d.EstimateTotal).To(Equal(-3600.0))
			Expect(d.Delta).To(BeNil())
			Expect(d.DeltaPercentage).To(BeNil())
		})
	})

	Describe("encoding", func() {
		It("encodes the worklog and links as JSON", func() {
			rec.Worklog = pipeline.ParseWorklog(worklogPage(1800, 3600))
			rec.Links = map[string]*model.LinkedRecord{"DEV-1": linkWithWorklog("DEV-1", 600)}

			d, err := pipeline.Derive(rec)
			Expect(err).NotTo(HaveOccurred())

			Expect(*d.FeasibilityTimespent).To(Equal(int64(5400)))

			var worklog map[string]any
			Expect(json.Unmarshal([]byte(*d.WorklogJSON), &worklog)).To(Succeed())
			Expect(worklog).To(HaveKeyWithValue("total", BeNumerically("==", 5400)))
			Expect(worklog["worklog"]).To(HaveLen(2))

			var links map[string]map[string]any
			Expect(json.Unmarshal([]byte(*d.LinksJSON), &links)).To(Succeed())
			Expect(links).To(HaveKey("DEV-1"))
			Expect(links["DEV-1"]).To(HaveKeyWithValue("key", "DEV-1"))
		})

		It("leaves the worklog columns null without a worklog", func() {
			d, err := pipeline.Derive(rec)

			Expect(err).NotTo(HaveOccurred())
			Expect(d.FeasibilityTimespent).To(BeNil())
			Expect(d.WorklogJSON).To(BeNil())
		})
	})

	It("derives every record of the working set in key order", func() {
		set := pipeline.WorkingSet{
			"FEAS-2": {Key: "FEAS-2", Estimates: model.Estimates{Unit: model.EstimateUnitHours}},
			"FEAS-1": {Key: "FEAS-1", Estimates: model.Estimates{Unit: model.EstimateUnitHours}},
		}

		rows, err := pipeline.Transform(set)

		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(2))
		Expect(rows[0].Key()).To(Equal("FEAS-1"))
		Expect(rows[1].Key()).To(Equal("FEAS-2"))
		Expect(set["FEAS-1"].Estimates.Unit).To(Equal(model.EstimateUnitHours))
	})
})
