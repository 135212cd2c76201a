package bucket

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"flaws.cloud", "flaws.cloud"},
		{"flaws.cloud.s3.amazonaws.com", "flaws.cloud"},
		{"flaws.cloud.s3-us-west-2.amazonaws.com", "flaws.cloud"},
		{"flaws.cloud.s3.dualstack.us-west-2.amazonaws.com", "flaws.cloud"},
		{"flaws.cloud:us-west-2", "flaws.cloud"},
		{"  my-bucket-01  ", "my-bucket-01"},
		{"abc", "abc"},
	}
	for _, c := range cases {
		got, err := ValidateName(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestValidateNameProviderHosts(t *testing.T) {
	hosts := []string{"ams3.digitaloceanspaces.com", "nyc3.digitaloceanspaces.com"}
	cases := []struct {
		in   string
		want string
	}{
		{"media-files.nyc3.digitaloceanspaces.com", "media-files"},
		{"media.files.ams3.digitaloceanspaces.com", "media.files"},
		{"media-files", "media-files"},
		{"flaws.cloud.s3-us-west-2.amazonaws.com", "flaws.cloud"},
	}
	for _, c := range cases {
		got, err := ValidateName(c.in, hosts...)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}

	got, err := ValidateName("backups.minio.internal", "minio.internal")
	require.NoError(t, err)
	assert.Equal(t, "backups", got)

	// Without the host the full hostname is taken as a dotted bucket name.
	got, err = ValidateName("media-files.nyc3.digitaloceanspaces.com")
	require.NoError(t, err)
	assert.Equal(t, "media-files.nyc3.digitaloceanspaces.com", got)
}

func TestValidateNameRejects(t *testing.T) {
	bad := []string{
		"ab",
		strings.Repeat("a", 64),
		"Uppercase",
		"under_score",
		"192.168.5.4",
		"-leading",
		"trailing-",
		"a..b",
		"a.-b",
		"xn--bucket",
		"bucket-s3alias",
		"",
	}
	for _, in := range bad {
		_, err := ValidateName(in)
		var inv *InvalidNameError
		require.Error(t, err, in)
		assert.True(t, errors.As(err, &inv), in)
	}
}

func TestMatrixResolveOnce(t *testing.T) {
	var m Matrix
	assert.Equal(t, Unknown, m.Get(AllUsers, Read))

	assert.True(t, m.Resolve(AllUsers, Read, Allowed))
	assert.False(t, m.Resolve(AllUsers, Read, Denied))
	assert.Equal(t, Allowed, m.Get(AllUsers, Read))

	assert.False(t, m.Resolve(AllUsers, Write, Unknown))
	assert.Equal(t, Unknown, m.Get(AllUsers, Write))
}

func TestMatrixFullControlImpliesAll(t *testing.T) {
	var m Matrix
	m.Grant(AuthenticatedUsers, FullControl)
	for _, k := range Kinds {
		assert.Equal(t, Allowed, m.Get(AuthenticatedUsers, k), k.String())
		assert.Equal(t, Unknown, m.Get(AllUsers, k), k.String())
	}
}

func TestMatrixDenyUnknownAndSummary(t *testing.T) {
	var m Matrix
	m.Grant(AllUsers, Read)
	m.Grant(AllUsers, ReadACL)
	m.DenyUnknown()

	assert.Equal(t, Denied, m.Get(AllUsers, Write))
	assert.Equal(t, Denied, m.Get(AuthenticatedUsers, Read))
	assert.Equal(t, "AuthUsers: [], AllUsers: [Read, ReadACP]", m.Summary())
	assert.Equal(t, "allowed", m.Map()["AllUsers"]["Read"])
	assert.Equal(t, "denied", m.Map()["AuthUsers"]["FullControl"])
}

func TestMatrixClear(t *testing.T) {
	var m Matrix
	m.Grant(AuthenticatedUsers, Write)
	m.Clear(AuthenticatedUsers, Write)
	assert.Equal(t, Unknown, m.Get(AuthenticatedUsers, Write))
}

func TestParsePermissionRoundTrip(t *testing.T) {
	for _, p := range []Permission{Unknown, Allowed, Denied} {
		assert.Equal(t, p, ParsePermission(p.String()))
	}
	assert.Equal(t, Unknown, ParsePermission("maybe"))
}

func TestAddObjectReplacesSize(t *testing.T) {
	b := New("example-bucket")
	b.AddObject(Object{Key: "b.txt", Size: 10})
	b.AddObject(Object{Key: "a.txt", Size: 5})
	b.AddObject(Object{Key: "b.txt", Size: 7})

	assert.Equal(t, 2, b.ObjectCount())
	assert.EqualValues(t, 12, b.TotalSize)
	objs := b.Objects()
	require.Len(t, objs, 2)
	assert.Equal(t, "a.txt", objs[0].Key)

	b.ResetObjects()
	assert.Zero(t, b.ObjectCount())
	assert.Zero(t, b.TotalSize)
}

func TestReadNames(t *testing.T) {
	in := "one-bucket\n\n# comment\ntwo-bucket\none-bucket\n  three  \n"
	names, err := ReadNames(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"one-bucket", "two-bucket", "three"}, names)
}
