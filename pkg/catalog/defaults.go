package catalog

var defaultEndpoints = []Endpoint{
	{ID: "us-ny", City: "New York", Region: "NY", Country: "United States", Flag: "🇺🇸", Lat: 40.7128, Lng: -74.0060, Load: 45, LatencyMs: 23},
	{ID: "us-la", City: "Los Angeles", Region: "CA", Country: "United States", Flag: "🇺🇸", Lat: 34.0522, Lng: -118.2437, Load: 62, LatencyMs: 45},
	{ID: "us-chi", City: "Chicago", Region: "IL", Country: "United States", Flag: "🇺🇸", Lat: 41.8781, Lng: -87.6298, Load: 30, LatencyMs: 35},
	{ID: "us-mia", City: "Miami", Region: "FL", Country: "United States", Flag: "🇺🇸", Lat: 25.7617, Lng: -80.1918, Load: 88, LatencyMs: 50},
	{ID: "us-sea", City: "Seattle", Region: "WA", Country: "United States", Flag: "🇺🇸", Lat: 47.6062, Lng: -122.3321, Load: 25, LatencyMs: 60},
	{ID: "us-dal", City: "Dallas", Region: "TX", Country: "United States", Flag: "🇺🇸", Lat: 32.7767, Lng: -96.7970, Load: 55, LatencyMs: 40},
}

// Default returns the built-in server list.
func Default() *Catalog {
	c, err := New(defaultEndpoints)
	if err != nil {
		panic(err)
	}
	return c
}
