package kv

type OpKind int

const (
	OpSet OpKind = iota
	OpHSet
	OpDel
)

func (k OpKind) String() string {
	switch k {
	case OpSet:
		return "set"
	case OpHSet:
		return "hset"
	case OpDel:
		return "del"
	default:
		return "unknown"
	}
}

// Op is one write inside a Batch. Field is only used by OpHSet.
type Op struct {
	Kind  OpKind
	Key   string
	Field string
	Value []byte
}

// Batch collects writes that must land together.
type Batch struct {
	ops []Op
}

func NewBatch() *Batch {
	return &Batch{}
}

func (b *Batch) Set(key string, value []byte) *Batch {
	b.ops = append(b.ops, Op{Kind: OpSet, Key: key, Value: value})
	return b
}

func (b *Batch) HSet(key, field string, value []byte) *Batch {
	b.ops = append(b.ops, Op{Kind: OpHSet, Key: key, Field: field, Value: value})
	return b
}

func (b *Batch) Del(key string) *Batch {
	b.ops = append(b.ops, Op{Kind: OpDel, Key: key})
	return b
}

func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ops)
}

// Ops returns the queued writes in insertion order.
func (b *Batch) Ops() []Op {
	if b == nil {
		return nil
	}
	out := make([]Op, len(b.ops))
	copy(out, b.ops)
	return out
}
