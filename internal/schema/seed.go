package schema

// ReservedSeedSchemas are the tenant pipeline stage names reserved at
// registry construction time: scope definition, subdomain enumeration,
// HTTP probing, headless browsing, content discovery, JavaScript
// intelligence, API cataloguing and its findings, mobile intelligence,
// change detection, and final ranking. Each is seeded at version 1.0.0
// with no fields — a tenant owns its own column set and adds fields with
// AddField or replaces the registration outright with Register.
var ReservedSeedSchemas = []string{
	"scope",
	"subdomains",
	"probe",
	"headless",
	"discovery",
	"jsintel",
	"api_catalog",
	"api_findings",
	"mobile_intel",
	"changes",
	"final_ranked",
}

// seedVersion is the starting version of every reserved seed schema.
var seedVersion = Version{Major: 1, Minor: 0, Patch: 0}

// registerSeedSchemas pre-registers the eleven reserved seed schemas into r
// at version 1.0.0. Column sets are left empty: the core's contract is
// the reserved name and starting version, not any concrete field list.
func registerSeedSchemas(r *Registry) {
	for _, name := range ReservedSeedSchemas {
		r.Register(New(name, seedVersion))
	}
}

// IsReservedSeedName reports whether name is one of the eleven reserved
// seed schema identifiers.
func IsReservedSeedName(name string) bool {
	for _, s := range ReservedSeedSchemas {
		if s == name {
			return true
		}
	}
	return false
}
