package agents

type provenanceKind int

const (
	provenanceBuiltin provenanceKind = iota
	provenanceCustom
)

// Provenance records where a configuration set came from. It is
// resolved once, when the set is registered, so nothing downstream has
// to sniff key strings to tell built-in scenarios from user-authored
// ones.
type Provenance struct {
	kind provenanceKind
	name string
}

func Builtin(name string) Provenance {
	return Provenance{kind: provenanceBuiltin, name: name}
}

func Custom(name string) Provenance {
	return Provenance{kind: provenanceCustom, name: name}
}

func (p Provenance) IsCustom() bool { return p.kind == provenanceCustom }

func (p Provenance) Name() string { return p.name }

func (p Provenance) String() string {
	if p.IsCustom() {
		return "custom:" + p.name
	}
	return "builtin:" + p.name
}
