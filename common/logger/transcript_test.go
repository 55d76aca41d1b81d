package logger_test

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"feasibility.app/etl/common/logger"
)

var _ = Describe("Transcript", func() {
	var (
		ctx context.Context
		dir string
		now time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
		now = time.Date(2016, 10, 25, 14, 0, 0, 0, time.UTC)
	})

	touch := func(name string) string {
		path := filepath.Join(dir, name)
		Expect(os.WriteFile(path, []byte("old\n"), 0o644)).To(Succeed())
		return path
	}

	read := func(name string) string {
		b, err := os.ReadFile(filepath.Join(dir, name))
		Expect(err).NotTo(HaveOccurred())
		return string(b)
	}

	Describe("PruneTranscripts", func() {
		It("deletes transcripts three or more days old and keeps the rest", func() {
			expired := touch("10-22-2016.txt")
			older := touch("10-01-2016.txt")
			recent := touch("10-23-2016.txt")
			unrelated := touch("notes.txt")

			removed, err := logger.PruneTranscripts(dir, 3, now)

			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(ConsistOf(expired, older))
			Expect(recent).To(BeAnExistingFile())
			Expect(unrelated).To(BeAnExistingFile())
		})

		It("refuses a retention that would remove today's transcript", func() {
			today := touch("10-25-2016.txt")

			for _, days := range []int{0, -1} {
				removed, err := logger.PruneTranscripts(dir, days, now)

				Expect(err).To(MatchError(ContainSubstring("at least 1 day")))
				Expect(removed).To(BeEmpty())
			}
			Expect(today).To(BeAnExistingFile())
		})

		It("ignores a missing directory", func() {
			removed, err := logger.PruneTranscripts(filepath.Join(dir, "missing"), 3, now)

			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeEmpty())
		})
	})

	It("writes network calls and persistence writes to the dated file", func() {
		expired := touch("10-21-2016.txt")

		t, err := logger.OpenTranscript(logger.TranscriptOptions{
			Dir:           dir,
			RetentionDays: 3,
			Clock:         func() time.Time { return now },
		}, now)
		Expect(err).NotTo(HaveOccurred())

		t.Network(ctx, http.MethodGet, "http://jira/rest/api/2/issue/FEAS-1/worklog", 200, 120*time.Millisecond, nil)
		t.Network(ctx, http.MethodGet, "http://jira/rest/api/2/issue/FEAS-2/worklog", 404, time.Millisecond, errors.New("not found"))
		t.Write(ctx, "feasibility_insert", "FEAS-1", nil)
		Expect(t.Path()).To(Equal(filepath.Join(dir, "10-25-2016.txt")))
		Expect(t.Close()).To(Succeed())

		Expect(expired).NotTo(BeAnExistingFile())

		content := read("10-25-2016.txt")
		Expect(content).To(ContainSubstring("level=INFO msg=network method=GET url=http://jira/rest/api/2/issue/FEAS-1/worklog status=200 duration_ms=120"))
		Expect(content).To(ContainSubstring("level=ERROR msg=network"))
		Expect(content).To(ContainSubstring(`error="not found"`))
		Expect(content).To(ContainSubstring("msg=query statement=feasibility_insert key=FEAS-1 success=true"))
	})

	It("appends to an existing transcript for the same day", func() {
		touch("10-25-2016.txt")

		t, err := logger.OpenTranscript(logger.TranscriptOptions{Dir: dir, RetentionDays: 3, Clock: func() time.Time { return now }}, now)
		Expect(err).NotTo(HaveOccurred())
		t.Write(ctx, "feasibility_insert", "FEAS-9", errors.New("boom"))
		Expect(t.Close()).To(Succeed())

		content := read("10-25-2016.txt")
		Expect(content).To(HavePrefix("old\n"))
		Expect(content).To(ContainSubstring("success=false"))
	})

	It("moves to a new file and prunes when the day changes", func() {
		clock := now
		var mu sync.Mutex
		t, err := logger.OpenTranscript(logger.TranscriptOptions{
			Dir:           dir,
			RetentionDays: 1,
			Clock: func() time.Time {
				mu.Lock()
				defer mu.Unlock()
				return clock
			},
		}, now)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(t.Close)

		t.Write(ctx, "feasibility_insert", "FEAS-1", nil)

		mu.Lock()
		clock = now.Add(24 * time.Hour)
		mu.Unlock()
		t.Write(ctx, "feasibility_insert", "FEAS-2", nil)

		Expect(t.Path()).To(Equal(filepath.Join(dir, "10-26-2016.txt")))
		Expect(filepath.Join(dir, "10-25-2016.txt")).NotTo(BeAnExistingFile())
		Expect(read("10-26-2016.txt")).To(ContainSubstring("key=FEAS-2"))
	})

	It("is safe for concurrent writers", func() {
		t, err := logger.OpenTranscript(logger.TranscriptOptions{Dir: dir, RetentionDays: 3, Clock: func() time.Time { return now }}, now)
		Expect(err).NotTo(HaveOccurred())

		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				t.Write(ctx, "feasibility_insert", "FEAS-1", nil)
			}()
		}
		wg.Wait()
		Expect(t.Close()).To(Succeed())

		Expect(strings.Count(read("10-25-2016.txt"), "\n")).To(Equal(20))
	})

	It("discards everything when nil", func() {
		var t *logger.Transcript
		t.Network(ctx, http.MethodGet, "http://jira", 200, 0, nil)
		t.Write(ctx, "feasibility_insert", "FEAS-1", nil)
		Expect(t.Close()).To(Succeed())
		Expect(t.Path()).To(BeEmpty())
	})
})
