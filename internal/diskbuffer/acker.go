package diskbuffer

// ackTarget is satisfied by Stage[T] for any T, since ack accounting never
// depends on the stored item type.
type ackTarget interface {
	ack(n uint64)
}

// Acker is the handle a sink advances as it durably finishes handling
// events read from a disk stage. Each Ack takes the stage's mutex and
// advances delete_offset past n good records (plus any poison records
// right after them), validated against read_offset; exceeding it is a bug
// and panics. It is not a lock-free counter: acks
// share the stage mutex with reads and writes.
type Acker struct {
	stage ackTarget
}

func newAcker(stage ackTarget) *Acker {
	return &Acker{stage: stage}
}

// Ack reports that n more records (in read order) have been durably handled
// downstream and may be reclaimed.
func (a *Acker) Ack(n uint64) {
	a.stage.ack(n)
}
