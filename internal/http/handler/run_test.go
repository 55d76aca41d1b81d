package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"feasibility.app/etl/internal/http/handler"
	"feasibility.app/etl/internal/model"
	"feasibility.app/etl/internal/pipeline"
	"feasibility.app/etl/internal/service"
)

var _ = Describe("RunHandler", func() {
	var (
		router *gin.Engine
		svc    *mockRunService
	)

	started := time.Date(2016, 10, 25, 6, 0, 0, 0, time.UTC)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		svc = &mockRunService{}
		h := handler.NewRunHandler(svc)

		router.POST("/runs", h.Create)
		router.GET("/runs", h.List)
		router.GET("/runs/:id", h.Get)
	})

	do := func(method, path string, body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewReader(body))
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	decode := func(w *httptest.ResponseRecorder) map[string]any {
		var out map[string]any
		Expect(json.Unmarshal(w.Body.Bytes(), &out)).To(Succeed())
		return out
	}

	Describe("Create", func() {
		It("starts a background run and returns 202", func() {
			svc.startFn = func(_ context.Context, trigger model.RunTrigger) (*model.PipelineRun, error) {
				Expect(trigger).To(Equal(model.RunTriggerAPI))
				return &model.PipelineRun{ID: 1234567890123456789, Trigger: trigger, Status: model.RunStatusRunning, StartedAt: started}, nil
			}

			w := do(http.MethodPost, "/runs", nil)

			Expect(w.Code).To(Equal(http.StatusAccepted))
			resp := decode(w)
			Expect(resp).To(HaveKeyWithValue("id", "1234567890123456789"))
			Expect(resp).To(HaveKeyWithValue("status", "running"))
			Expect(resp).NotTo(HaveKey("finished_at"))
		})

		It("returns 409 while another run is in progress", func() {
			svc.startFn = func(context.Context, model.RunTrigger) (*model.PipelineRun, error) {
				return nil, service.ErrRunInProgress
			}

			w := do(http.MethodPost, "/runs", nil)

			Expect(w.Code).To(Equal(http.StatusConflict))
		})

		It("waits for the run when asked and lists failing requests", func() {
			finished := started.Add(time.Minute)
			msg := "excessive supplemental data requests failed"
			svc.executeFn = func(context.Context, model.RunTrigger) (*model.PipelineRun, *pipeline.Report, error) {
				return &model.PipelineRun{ID: 5, Status: model.RunStatusFailed, Error: &msg, StartedAt: started, FinishedAt: &finished},
					&pipeline.Report{Failures: []pipeline.SubFetchFailure{{
						Failure: model.FetchFailure{URI: "http://jira/rest/api/2/issue/DEV-1", StatusCode: 404},
					}}},
					errors.New(msg)
			}

			w := do(http.MethodPost, "/runs", []byte(`{"wait":true}`))

			Expect(w.Code).To(Equal(http.StatusOK))
			resp := decode(w)
			Expect(resp).To(HaveKeyWithValue("status", "failed"))
			Expect(resp).To(HaveKeyWithValue("error", msg))
			Expect(resp).To(HaveKeyWithValue("failed_requests", ConsistOf("http://jira/rest/api/2/issue/DEV-1 - 404")))
		})

		It("rejects a malformed body", func() {
			w := do(http.MethodPost, "/runs", []byte(`{"wait":`))

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("Get", func() {
		It("returns the run", func() {
			svc.getFn = func(_ context.Context, id int64) (*model.PipelineRun, error) {
				Expect(id).To(Equal(int64(42)))
				return &model.PipelineRun{ID: 42, Status: model.RunStatusSucceeded, Loaded: 7, StartedAt: started}, nil
			}

			w := do(http.MethodGet, "/runs/42", nil)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(decode(w)).To(HaveKeyWithValue("loaded", BeNumerically("==", 7)))
		})

		It("returns 404 for an unknown run", func() {
			svc.getFn = func(context.Context, int64) (*model.PipelineRun, error) {
				return nil, service.ErrRunNotFound
			}

			Expect(do(http.MethodGet, "/runs/42", nil).Code).To(Equal(http.StatusNotFound))
		})

		It("returns 400 for a malformed id", func() {
			Expect(do(http.MethodGet, "/runs/abc", nil).Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("List", func() {
		It("passes the limit through", func() {
			svc.listFn = func(_ context.Context, limit int32) ([]model.PipelineRun, error) {
				Expect(limit).To(Equal(int32(5)))
				return []model.PipelineRun{{ID: 1, StartedAt: started}, {ID: 2, StartedAt: started}}, nil
			}

			w := do(http.MethodGet, "/runs?limit=5", nil)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(decode(w)["runs"]).To(HaveLen(2))
		})

		It("rejects an invalid limit", func() {
			Expect(do(http.MethodGet, "/runs?limit=-1", nil).Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 500 when listing fails", func() {
			svc.listFn = func(context.Context, int32) ([]model.PipelineRun, error) {
				return nil, errors.New("db down")
			}

			Expect(do(http.MethodGet, "/runs", nil).Code).To(Equal(http.StatusInternalServerError))
		})
	})
})
