package client

import "sync"

// Registry hands out one Client per endpoint URL. It replaces ambient
// singleton state: the composition root owns the registry and passes it to
// consumers, so clients stay independently constructible in tests.
type Registry struct {
	mu       sync.Mutex
	defaults Config
	clients  map[string]*Client
}

// NewRegistry creates a registry. URL-less fields of defaults apply to every
// client it creates.
func NewRegistry(defaults Config) *Registry {
	return &Registry{
		defaults: defaults,
		clients:  make(map[string]*Client),
	}
}

// Get returns the client for the given endpoint URL, creating it on first
// use. Repeated calls with the same URL return the same instance.
func (r *Registry) Get(url string) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, exists := r.clients[url]; exists {
		return c
	}
	cfg := r.defaults
	cfg.URL = url
	c := New(cfg)
	r.clients[url] = c
	return c
}

// CloseAll destroys every client the registry created.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.clients = make(map[string]*Client)
	r.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}
