// Package trajectory exports per-tick transitions as Apache Arrow IPC files,
// the columnar layout offline learners read directly.
package trajectory

import (
	"fmt"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/nvandessel/roadrunner/internal/engine"
)

// DefaultBatchSize is the number of rows buffered before a record batch is written.
const DefaultBatchSize = 4096

// Schema is the Arrow schema of a trajectory file.
var Schema = arrow.NewSchema([]arrow.Field{
	{Name: "episode", Type: arrow.PrimitiveTypes.Int64},
	{Name: "step", Type: arrow.PrimitiveTypes.Int64},
	{Name: "action", Type: arrow.PrimitiveTypes.Int8},
	{Name: "lane", Type: arrow.PrimitiveTypes.Int64},
	{Name: "distances", Type: arrow.ListOf(arrow.PrimitiveTypes.Float64)},
	{Name: "reward", Type: arrow.PrimitiveTypes.Float64},
	{Name: "done", Type: arrow.FixedWidthTypes.Boolean},
}, nil)

const (
	colEpisode = iota
	colStep
	colAction
	colLane
	colDistances
	colReward
	colDone
)

// Transition is one row of a trajectory file.
type Transition struct {
	Episode   int64
	Step      int64
	Action    engine.Action
	Lane      int
	Distances []float64
	Reward    float64
	Done      bool
}

// Writer buffers transitions and writes them as Arrow record batches.
// It is not safe for concurrent use.
type Writer struct {
	mem       memory.Allocator
	builder   *array.RecordBuilder
	fw        *ipc.FileWriter
	batchSize int
	pending   int
	rows      int
}

// NewWriter starts an Arrow IPC file on out. The file footer is written
// after seeking, so out must be seekable (an *os.File is). batchSize <= 0
// uses DefaultBatchSize.
func NewWriter(out io.WriteSeeker, batchSize int) (*Writer, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	mem := memory.NewGoAllocator()
	fw, err := ipc.NewFileWriter(out, ipc.WithSchema(Schema), ipc.WithAllocator(mem))
	if err != nil {
		return nil, fmt.Errorf("failed to create arrow writer: %w", err)
	}

	return &Writer{
		mem:       mem,
		builder:   array.NewRecordBuilder(mem, Schema),
		fw:        fw,
		batchSize: batchSize,
	}, nil
}

// Append buffers the transition produced by taking action in the given episode.
func (w *Writer) Append(episode int, action engine.Action, res engine.StepResult) error {
	if w.builder == nil {
		return fmt.Errorf("trajectory writer is closed")
	}

	b := w.builder
	b.Field(colEpisode).(*array.Int64Builder).Append(int64(episode))
	b.Field(colStep).(*array.Int64Builder).Append(int64(res.Info.Step))
	b.Field(colAction).(*array.Int8Builder).Append(int8(action))
	b.Field(colLane).(*array.Int64Builder).Append(int64(res.Observation.Lane))

	lb := b.Field(colDistances).(*array.ListBuilder)
	lb.Append(true)
	lb.ValueBuilder().(*array.Float64Builder).AppendValues(res.Observation.Distances, nil)

	b.Field(colReward).(*array.Float64Builder).Append(res.Reward)
	b.Field(colDone).(*array.BooleanBuilder).Append(res.Done)

	w.pending++
	w.rows++
	if w.pending >= w.batchSize {
		return w.Flush()
	}
	return nil
}

// Rows returns the number of transitions appended so far.
func (w *Writer) Rows() int {
	return w.rows
}

// Flush writes buffered transitions as one record batch.
func (w *Writer) Flush() error {
	if w.builder == nil || w.pending == 0 {
		return nil
	}

	rec := w.builder.NewRecord()
	defer rec.Release()
	w.pending = 0

	if err := w.fw.Write(rec); err != nil {
		return fmt.Errorf("failed to write record batch: %w", err)
	}
	return nil
}

// Close flushes pending rows and writes the file footer. It does not close
// the underlying io.Writer.
func (w *Writer) Close() error {
	if w.builder == nil {
		return nil
	}

	flushErr := w.Flush()
	w.builder.Release()
	w.builder = nil

	if err := w.fw.Close(); err != nil {
		return fmt.Errorf("failed to close arrow writer: %w", err)
	}
	return flushErr
}

// ReadAll loads every transition from an Arrow IPC file.
func ReadAll(r ipc.ReadAtSeeker) ([]Transition, error) {
	mem := memory.NewGoAllocator()
	fr, err := ipc.NewFileReader(r, ipc.WithAllocator(mem), ipc.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("failed to open arrow file: %w", err)
	}
	defer fr.Close()

	var out []Transition
	for i := 0; i < fr.NumRecords(); i++ {
		rec, err := fr.Record(i)
		if err != nil {
			return nil, fmt.Errorf("failed to read record batch %d: %w", i, err)
		}

		episodes := rec.Column(colEpisode).(*array.Int64)
		steps := rec.Column(colStep).(*array.Int64)
		actions := rec.Column(colAction).(*array.Int8)
		lanes := rec.Column(colLane).(*array.Int64)
		distances := rec.Column(colDistances).(*array.List)
		values := distances.ListValues().(*array.Float64)
		rewards := rec.Column(colReward).(*array.Float64)
		dones := rec.Column(colDone).(*array.Boolean)

		for row := 0; row < int(rec.NumRows()); row++ {
			start, end := distances.ValueOffsets(row)
			d := make([]float64, 0, end-start)
			for j := start; j < end; j++ {
				d = append(d, values.Value(int(j)))
			}

			out = append(out, Transition{
				Episode:   episodes.Value(row),
				Step:      steps.Value(row),
				Action:    engine.Action(actions.Value(row)),
				Lane:      int(lanes.Value(row)),
				Distances: d,
				Reward:    rewards.Value(row),
				Done:      dones.Value(row),
			})
		}
	}

	return out, nil
}
