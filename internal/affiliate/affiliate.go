package affiliate

import (
	"fmt"
	"net/url"
)

// TagParam is the query parameter merchants read the partner id from.
const TagParam = "tag"

// Rewrite returns rawURL with its tag parameter set to tag. An empty tag
// leaves the URL untouched. An existing tag parameter is overwritten.
func Rewrite(rawURL, tag string) (string, error) {
	if tag == "" {
		return rawURL, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("affiliate: parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("affiliate: url is not absolute: %q", rawURL)
	}

	q := u.Query()
	q.Set(TagParam, tag)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
