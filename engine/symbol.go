package engine

import "hash/fnv"

// HashName computes the hash used to key a symbol; the hash is computed
// from the name at decode time and the name is still carried alongside for
// diagnostics.
func HashName(name string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return h.Sum64()
}

// Symbol is a named entity: either a definition site (Resolved, with a
// concrete Ref) or a use site (unresolved).
type Symbol struct {
	Name     string
	Hash     uint64
	Resolved bool
	Ref      Reference
}

func NewSymbolDef(name string, ref Reference) Symbol {
	return Symbol{Name: name, Hash: HashName(name), Resolved: true, Ref: ref}
}

func NewSymbolUse(name string) Symbol {
	return Symbol{Name: name, Hash: HashName(name), Resolved: false}
}
