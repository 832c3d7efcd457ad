package httputil

import (
	"net/http"
	"time"
)

type Clients struct {
	API    *http.Client // listing API, JSON payloads can be large
	Images *http.Client // image CDN
}

func NewClients(apiTimeout, imageTimeout time.Duration) *Clients {
	if apiTimeout <= 0 {
		apiTimeout = 60 * time.Second
	}
	if imageTimeout <= 0 {
		imageTimeout = 30 * time.Second
	}

	images := &http.Client{
		Timeout: imageTimeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	return &Clients{
		API:    &http.Client{Timeout: apiTimeout},
		Images: images,
	}
}
