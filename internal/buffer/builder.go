package buffer

// stageSpec is one stage added to a Builder, paired with the when-full
// policy that governs it.
type stageSpec[T Bufferable] struct {
	stage    Stage[T]
	whenFull WhenFull
	// hasAcks marks stages that require segmented (disk) acknowledgement,
	// used to enforce ErrStackedAcks.
	hasAcks bool
}

// Builder constructs a composed buffer topology from one or more stages,
// following the algorithm in the original vector-buffers TopologyBuilder:
// stages are supplied outermost-first and composed from the inside out.
type Builder[T Bufferable] struct {
	stages []stageSpec[T]
}

// NewBuilder returns an empty Builder.
func NewBuilder[T Bufferable]() *Builder[T] {
	return &Builder[T]{}
}

// Stage appends a stage to the topology with the given when-full policy.
// Stages are added outermost (closest to the producer) first; the last
// stage added is the innermost.
func (b *Builder[T]) Stage(stage Stage[T], whenFull WhenFull) *Builder[T] {
	b.stages = append(b.stages, stageSpec[T]{stage: stage, whenFull: whenFull})
	return b
}

// StageWithAcks is like Stage but marks the stage as requiring segmented
// acknowledgement (disk stages). At most one such stage is permitted per
// topology.
func (b *Builder[T]) StageWithAcks(stage Stage[T], whenFull WhenFull) *Builder[T] {
	b.stages = append(b.stages, stageSpec[T]{stage: stage, whenFull: whenFull, hasAcks: true})
	return b
}

// Build validates and composes the added stages into a single sender and
// receiver representing the whole edge. Validation rules:
//
//   - the topology must not be empty
//   - the innermost (last-added) stage must not be configured Overflow
//   - a Block or DropNewest stage must not have a successor stage
//   - at most one stage may require segmented acknowledgement
func (b *Builder[T]) Build(edgeID string) (*BufferSender[T], *BufferReceiver[T], error) {
	if len(b.stages) == 0 {
		return nil, nil, ErrEmptyTopology
	}

	acked := 0
	for _, s := range b.stages {
		if s.hasAcks {
			acked++
		}
	}
	if acked > 1 {
		return nil, nil, ErrStackedAcks
	}

	// Walk from innermost (last) to outermost (first), composing as we go,
	// mirroring vector-buffers' reverse-order build.
	var curSender *BufferSender[T]
	var curReceiver *BufferReceiver[T]

	for i := len(b.stages) - 1; i >= 0; i-- {
		spec := b.stages[i]
		isInnermost := curSender == nil

		if spec.whenFull == Overflow && isInnermost {
			return nil, nil, ErrOverflowWhenLast
		}
		if spec.whenFull != Overflow && !isInnermost {
			return nil, nil, ErrNextStageNotUsed
		}

		usage := NewUsageHandle(edgeID)
		sender := NewBufferSender[T](spec.stage.Sender(), spec.whenFull, curSender, usage, spec.stage.SupportsMultiProducer())
		receiver := NewBufferReceiver[T](spec.stage.Receiver(), curReceiver, usage)

		curSender = sender
		curReceiver = receiver
	}

	return curSender, curReceiver, nil
}
