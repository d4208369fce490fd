package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by the outbound service clients: push notifications and the profile sync.
var HTTPClient = &http.Client{
	Timeout: 15 * time.Second,
}
