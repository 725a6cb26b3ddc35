package domain

// GroupPrefix prefixes every group derived from an import request.
const GroupPrefix = "isi_request__"

// GroupName returns the namespace scoping all derived jobs of a request.
// It depends only on the request ID, so every caller that lists, creates or
// deletes derived jobs must go through it.
func GroupName(req *ImportRequest) string {
	return GroupPrefix + req.ID
}

// DerivedJobID returns the stable identifier of the job derived from
// templateID within the request's group.
func DerivedJobID(req *ImportRequest, templateID string) string {
	return ScopedID(GroupName(req), templateID)
}

// ScopedID joins a group name and a template ID.
func ScopedID(group, templateID string) string {
	return group + "_" + templateID
}
