package pipeline_test

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/foundry/stdfingest/internal/pipeline"
	"github.com/foundry/stdfingest/internal/stdfrec"
)

func TestQueueEnqueueDequeueOrder(t *testing.T) {
	q := pipeline.NewQueue(4)

	q.Enqueue(pipeline.Message{Op: pipeline.OpSetEndian, Order: binary.LittleEndian})
	q.Enqueue(pipeline.Message{Op: pipeline.OpParse, RecordCode: stdfrec.CodePRR, FileOffset: 10})
	q.Enqueue(pipeline.Message{Op: pipeline.OpFinish, Err: nil})
	q.Close()

	first := q.Dequeue()
	if first.Op != pipeline.OpSetEndian || first.Order != binary.LittleEndian {
		t.Fatalf("first message = %+v", first)
	}

	second := q.Dequeue()
	if second.Op != pipeline.OpParse || second.RecordCode != stdfrec.CodePRR || second.FileOffset != 10 {
		t.Fatalf("second message = %+v", second)
	}

	third := q.Dequeue()
	if third.Op != pipeline.OpFinish || third.Err != nil {
		t.Fatalf("third message = %+v", third)
	}
}

func TestQueueBlocksUntilCapacityFrees(t *testing.T) {
	q := pipeline.NewQueue(1)
	q.Enqueue(pipeline.Message{Op: pipeline.OpParse})

	done := make(chan struct{})
	go func() {
		q.Enqueue(pipeline.Message{Op: pipeline.OpFinish})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second Enqueue returned before the queue had capacity")
	case <-time.After(20 * time.Millisecond):
	}

	q.Dequeue()
	<-done
	q.Dequeue()
}
