package scan

import (
	"github.com/arencloud/s3audit/internal/bucket"
	"github.com/arencloud/s3audit/internal/storage"
)

var kindByPermission = map[storage.Permission]bucket.Kind{
	storage.PermRead:        bucket.Read,
	storage.PermWrite:       bucket.Write,
	storage.PermReadACP:     bucket.ReadACL,
	storage.PermWriteACP:    bucket.WriteACL,
	storage.PermFullControl: bucket.FullControl,
}

var permissionByKind = map[bucket.Kind]storage.Permission{
	bucket.Read:        storage.PermRead,
	bucket.Write:       storage.PermWrite,
	bucket.ReadACL:     storage.PermReadACP,
	bucket.WriteACL:    storage.PermWriteACP,
	bucket.FullControl: storage.PermFullControl,
}

func groupPrincipal(uri string) (bucket.Principal, bool) {
	switch uri {
	case storage.AllUsersURI:
		return bucket.AllUsers, true
	case storage.AuthUsersURI:
		return bucket.AuthenticatedUsers, true
	}
	return 0, false
}

func groupURI(p bucket.Principal) string {
	if p == bucket.AuthenticatedUsers {
		return storage.AuthUsersURI
	}
	return storage.AllUsersURI
}

// ApplyACL folds the group grants of an ACL document into m. The ACL is
// treated as complete: afterwards every cell of both principals that no grant
// mentioned is Denied.
func ApplyACL(m *bucket.Matrix, acl *storage.ACL) {
	if acl != nil {
		for _, g := range acl.Grants {
			p, ok := groupPrincipal(g.Grantee.URI)
			if !ok {
				continue
			}
			k, ok := kindByPermission[g.Permission]
			if !ok {
				continue
			}
			m.Grant(p, k)
		}
	}
	m.DenyUnknown()
}

// ReconstructGrants builds the replacement grant set for a put-ACL probe run
// as id: a group grant for every Allowed cell, every grant of the previously
// read ACL, and WRITE_ACP for id's principal. Duplicates are dropped.
func ReconstructGrants(b *bucket.Bucket, id Identity) []storage.Grant {
	var out []storage.Grant
	seen := map[storage.Grant]bool{}
	add := func(g storage.Grant) {
		key := g
		key.Grantee.DisplayName = ""
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, g)
	}
	group := func(p bucket.Principal, k bucket.Kind) storage.Grant {
		return storage.Grant{
			Grantee:    storage.Grantee{Type: storage.GranteeGroup, URI: groupURI(p)},
			Permission: permissionByKind[k],
		}
	}

	for _, p := range bucket.Principals {
		if b.Perms.Get(p, bucket.FullControl) == bucket.Allowed {
			add(group(p, bucket.FullControl))
			continue
		}
		for _, k := range b.Perms.Allowed(p) {
			add(group(p, k))
		}
	}
	if b.ACL != nil {
		for _, g := range b.ACL.Grants {
			add(g)
		}
	}
	add(group(id.Principal(), bucket.WriteACL))
	return out
}
