package domain

// Sanitize returns a copy of v in which every non-finite number (NaN, +Inf,
// -Inf) has been replaced by null, at any depth. The check runs at every
// level of the recursion, so a bare non-finite scalar is handled as well as
// one nested inside arrays or objects. Other values are returned unchanged.
//
// Sanitize is total and idempotent.
func Sanitize(v Value) Value {
	switch v.kind {
	case KindObject:
		members := make([]Member, len(v.members))
		for i, m := range v.members {
			members[i] = Member{Key: m.Key, Value: Sanitize(m.Value)}
		}
		return Object(members...)
	case KindArray:
		items := make([]Value, len(v.items))
		for i, item := range v.items {
			items[i] = Sanitize(item)
		}
		return Array(items...)
	case KindNumber:
		if v.IsNonFinite() {
			return Null()
		}
		return v
	default:
		return v
	}
}

// ContainsNonFinite reports whether any number in v is NaN or infinite.
func ContainsNonFinite(v Value) bool {
	switch v.kind {
	case KindNumber:
		return v.IsNonFinite()
	case KindArray:
		for _, item := range v.items {
			if ContainsNonFinite(item) {
				return true
			}
		}
	case KindObject:
		for _, m := range v.members {
			if ContainsNonFinite(m.Value) {
				return true
			}
		}
	}
	return false
}
