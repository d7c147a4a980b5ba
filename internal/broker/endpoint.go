package broker

import "fmt"

// PingPattern is the reserved liveness probe understood by every meta handler
const PingPattern = "ping"

// Patterns holds the message pattern names a remote domain answers to
type Patterns struct {
	ByDate     string
	List       string
	ByID       string
	Invalidate string
}

// DefaultPatterns follows the meta system naming: plural for collections, singular for lookups
func DefaultPatterns(domain, plural string) Patterns {
	return Patterns{
		ByDate:     fmt.Sprintf("get_meta_%s_by_date", plural),
		List:       fmt.Sprintf("get_meta_%s", plural),
		ByID:       fmt.Sprintf("get_meta_%s_by_id", domain),
		Invalidate: fmt.Sprintf("invalidate_%s_cache", domain),
	}
}

// Endpoint identifies one logical remote domain. Built once at startup
type Endpoint struct {
	Domain   string
	URL      string
	Queue    string
	Patterns Patterns
}

func NewEndpoint(domain, plural, url, queue string) Endpoint {
	return Endpoint{
		Domain:   domain,
		URL:      url,
		Queue:    queue,
		Patterns: DefaultPatterns(domain, plural),
	}
}
