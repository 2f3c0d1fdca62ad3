package osal

// Block is caller-owned storage for a kernel object created by one of the
// init variants. Each backend exports one concrete block type per object kind
// together with its size, so that applications can reserve the storage
// statically. Blocks are sealed: a type satisfies Block only by embedding
// BlockBase.
type Block interface {
	block() *BlockBase
}

// BlockBase is embedded by every backend block type.
type BlockBase struct {
	live bool
}

func (b *BlockBase) block() *BlockBase {
	return b
}

// Claim marks the block as holding a live object. It returns false if the
// block is already in use.
func Claim(b Block) bool {
	base := b.block()
	if base.live {
		return false
	}

	base.live = true

	return true
}

// Release marks the block as free again.
func Release(b Block) {
	b.block().live = false
}

// InUse reports whether the block currently holds a live object.
func InUse(b Block) bool {
	return b.block().live
}
