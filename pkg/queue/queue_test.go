package queue_test

import (
	"context"
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sensei/pkg/queue"
)

var _ = Describe("Task", func() {
	It("rejects an empty name", func() {
		_, err := queue.NewTask("", nil)
		Expect(err).To(MatchError(queue.ErrEmptyTaskName))
	})

	It("assigns an id and schema version", func() {
		t, err := queue.NewTask(queue.TaskFinalizeEpisode, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(t.ID).NotTo(BeEmpty())
		Expect(t.SchemaVersion).To(Equal(queue.SchemaVersionV1))
		Expect(t.Kwargs).NotTo(BeNil())
	})

	It("reads numeric kwargs after a JSON round trip", func() {
		t, _ := queue.NewTask(queue.TaskFinalizeEpisode, map[string]any{
			"episode_id": "01J0",
			"start":      int64(11),
		})
		raw, err := t.Marshal()
		Expect(err).NotTo(HaveOccurred())

		decoded, err := queue.UnmarshalTask(raw)
		Expect(err).NotTo(HaveOccurred())
		Expect(decoded.String("episode_id")).To(Equal("01J0"))
		n, ok := decoded.Int64("start")
		Expect(ok).To(BeTrue())
		Expect(n).To(Equal(int64(11)))

		_, ok = decoded.Int64("missing")
		Expect(ok).To(BeFalse())
		Expect(decoded.String("missing")).To(BeEmpty())
	})

	It("rejects envelopes from another schema version", func() {
		raw, _ := json.Marshal(map[string]any{"schema_version": 9, "name": "x"})
		_, err := queue.UnmarshalTask(raw)
		Expect(err).To(MatchError(ContainSubstring("schema version")))
	})
})

var _ = Describe("Mux", func() {
	It("routes by task name", func() {
		mux := queue.NewMux()
		var got string
		mux.Handle("a", func(_ context.Context, t *queue.Task) error {
			got = t.String("k")
			return nil
		})

		t, _ := queue.NewTask("a", map[string]any{"k": "v"})
		Expect(mux.Serve(context.Background(), t)).To(Succeed())
		Expect(got).To(Equal("v"))
		Expect(mux.Tasks()).To(ConsistOf("a"))
	})

	It("returns handler errors", func() {
		mux := queue.NewMux()
		boom := errors.New("boom")
		mux.Handle("a", func(context.Context, *queue.Task) error { return boom })

		t, _ := queue.NewTask("a", nil)
		Expect(mux.Serve(context.Background(), t)).To(MatchError(boom))
	})

	It("fails for unknown tasks", func() {
		t, _ := queue.NewTask("nobody", nil)
		Expect(queue.NewMux().Serve(context.Background(), t)).To(MatchError(queue.ErrUnknownTask))
	})
})
