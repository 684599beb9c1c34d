package lsid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/ontology/pkg/types"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		authority string
		namespace string
		objectID  string
		version   string
	}{
		{
			name:      "encoded colon in object id",
			in:        "urn:lsid:labkey.com:SampleSet.Folder-4:Repro%3ASet",
			authority: "labkey.com",
			namespace: "SampleSet.Folder-4",
			objectID:  "Repro:Set",
		},
		{
			name:      "version and mixed-case scheme",
			in:        "URN:LSID:Example.ORG:Run:42:3",
			authority: "example.org",
			namespace: "Run",
			objectID:  "42",
			version:   "3",
		},
		{
			name:      "trailing fragment marker",
			in:        "urn:lsid:example.org:Vocabulary:Weight#",
			authority: "example.org",
			namespace: "Vocabulary",
			objectID:  "Weight#",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := Parse(tt.in)
			require.True(t, l.Valid())
			assert.Equal(t, tt.authority, l.Authority())
			assert.Equal(t, tt.namespace, l.Namespace())
			assert.Equal(t, tt.objectID, l.ObjectID())
			assert.Equal(t, tt.version, l.Version())
		})
	}
}

func TestFormatRoundTrip(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"urn:lsid:labkey.com:SampleSet.Folder-4:Repro%3ASet", "urn:lsid:labkey.com:SampleSet.Folder-4:Repro%3ASet"},
		{"urn:lsid:LabKey.COM:Data:file%20one:2", "urn:lsid:labkey.com:Data:file%20one:2"},
		{"urn:lsid:example.org:Vocabulary:Weight#", "urn:lsid:example.org:Vocabulary:Weight#"},
		{"urn:lsid:example.org:Material:a%2fb", "urn:lsid:example.org:Material:a%2Fb"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.in).String())
			assert.Equal(t, tt.want, Parse(Parse(tt.in).String()).String(), "format is stable")
		})
	}
}

func TestInvalidKeepsSource(t *testing.T) {
	for _, in := range []string{"", "not an lsid", "urn:lsid:only:two", "urn:lsid:a:b:c:d:e", "urn:lsid:a:b:%zz"} {
		l := Parse(in)
		assert.False(t, l.Valid(), in)
		assert.Equal(t, in, l.String())

		_, err := Check(in)
		assert.ErrorIs(t, err, types.ErrInvalidLsid)
	}
}

func TestNamespaceParts(t *testing.T) {
	l := Parse("urn:lsid:example.org:Run.Folder-7.extra:99")
	assert.Equal(t, "Run", l.NamespacePrefix())
	assert.Equal(t, "Folder-7.extra", l.NamespaceSuffix())

	l = Parse("urn:lsid:example.org:Run:99")
	assert.Equal(t, "Run", l.NamespacePrefix())
	assert.Empty(t, l.NamespaceSuffix())
}

func TestEqual(t *testing.T) {
	a := Parse("urn:lsid:Example.org:Run:a%3Ab")
	b := Parse("urn:lsid:example.org:Run:a%3ab")
	assert.True(t, a.Equal(b), "decoded parts compare")
	assert.False(t, a.Equal(Parse("urn:lsid:example.org:Run:c")))
	assert.True(t, Parse("junk").Equal(Parse("junk")))
	assert.False(t, Parse("junk").Equal(a))
}

func TestBuilder(t *testing.T) {
	SetDefaultAuthority("Example.ORG")
	t.Cleanup(func() { SetDefaultAuthority(DefaultAuthority) })

	l := NewBuilder(Lsid{}).
		SetNamespacePrefix("Run").
		SetNamespaceSuffix("Folder-3").
		SetObjectID("x:1").
		Build()
	require.True(t, l.Valid())
	assert.Equal(t, "urn:lsid:example.org:Run.Folder-3:x%3A1", l.String())

	next := NewBuilder(l).SetVersion("2").Build()
	assert.Equal(t, "urn:lsid:example.org:Run.Folder-3:x%3A1:2", next.String())
	assert.Empty(t, l.Version(), "builders do not mutate their source")

	assert.False(t, NewBuilder(Lsid{}).SetNamespacePrefix("Run").Build().Valid())
}
