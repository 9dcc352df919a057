package devenv

// CallWatchTestConfig is read from dev/.state/callwatch.json5 by the tests
// that reach the live TRBOnet server.
type CallWatchTestConfig struct {
	CallWatchUrl string `json:"callwatch_url"`
	BaseUrl      string `json:"base_url"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	// Driver is "chrome" or "http", defaults to "http".
	Driver string `json:"driver"`
}
