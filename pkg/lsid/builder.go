package lsid

// Builder assembles an Lsid incrementally.
type Builder struct {
	authority       string
	namespacePrefix string
	namespaceSuffix string
	objectID        string
	version         string
}

// NewBuilder starts from l. An invalid or empty l starts from the default
// authority with empty parts.
func NewBuilder(l Lsid) *Builder {
	b := &Builder{authority: Authority()}
	if !l.valid {
		return b
	}
	if l.authority != "" {
		b.authority = l.authority
	}
	b.namespacePrefix = l.NamespacePrefix()
	b.namespaceSuffix = l.NamespaceSuffix()
	b.objectID = l.objectID
	b.version = l.version
	return b
}

func (b *Builder) SetAuthority(a string) *Builder {
	b.authority = a
	return b
}

func (b *Builder) SetNamespacePrefix(p string) *Builder {
	b.namespacePrefix = p
	return b
}

func (b *Builder) SetNamespaceSuffix(s string) *Builder {
	b.namespaceSuffix = s
	return b
}

func (b *Builder) SetObjectID(id string) *Builder {
	b.objectID = id
	return b
}

func (b *Builder) SetVersion(v string) *Builder {
	b.version = v
	return b
}

// Build returns the identifier. It is invalid when any required part is empty.
func (b *Builder) Build() Lsid {
	ns := b.namespacePrefix
	if b.namespaceSuffix != "" {
		ns += "." + b.namespaceSuffix
	}
	l := Lsid{
		authority: b.authority,
		namespace: ns,
		objectID:  b.objectID,
		version:   b.version,
	}
	l.valid = l.authority != "" && ns != "" && b.objectID != ""
	if !l.valid {
		l.src = "urn:lsid:" + l.authority + ":" + ns + ":" + b.objectID
	}
	return l
}
