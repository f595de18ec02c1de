package steam

// FetchStatus describes the outcome of one details fetch. Failure is always
// returned as data, never as a panic or a raw error escaping the client.
type FetchStatus string

const (
	// StatusSuccess means the store returned a usable details payload.
	StatusSuccess FetchStatus = "success"
	// StatusFailed means the store answered but reported no data for the id.
	StatusFailed FetchStatus = "failed"
	// StatusRateLimited means HTTP 429 persisted past the retry budget.
	StatusRateLimited FetchStatus = "rate_limited"
	// StatusBlocked means HTTP 403, a permanent outcome for this run.
	StatusBlocked FetchStatus = "blocked"
	// StatusError means a transient network or parse failure exhausted its retries.
	StatusError FetchStatus = "error"
)

// AppDetails is the parsed details payload for one app at one point in time.
// Only derived fields are persisted downstream; the struct itself is
// ephemeral per fetch.
type AppDetails struct {
	AppID              int64
	Type               string
	Name               string
	ComingSoon         bool
	ComingSoonKnown    bool // coming_soon key present in the payload
	HasReleaseInfo     bool // release_date object present in the payload
	ReleaseDateRaw     string
	Developers         []string
	Publishers         []string
	Categories         []string
	Genres             []string
	Description        string
	SupportedLanguages string
	Website            string
	HeaderImage        string
	Followers          *int64 // optional interest metric when the source exposes it
}

// FetchResult couples a fetch outcome with its payload. Details is nil for
// every status except StatusSuccess.
type FetchResult struct {
	AppID   int64
	Status  FetchStatus
	Details *AppDetails
	Err     error // underlying cause for non-success statuses, may be nil
}

// OK reports whether the fetch produced a usable payload.
func (r FetchResult) OK() bool {
	return r.Status == StatusSuccess && r.Details != nil
}
