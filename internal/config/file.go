package config

// File is the optional YAML configuration. Environment variables take
// precedence over values set here.
type File struct {
	AppName  string `yaml:"app_name"`
	Env      string `yaml:"env"`
	HTTPAddr string `yaml:"http_addr"`
	LogLevel string `yaml:"log_level"`

	AllowedOrigins []string `yaml:"allowed_origins"`

	Session struct {
		CheckInterval    string `yaml:"check_interval"`
		WarningThreshold string `yaml:"warning_threshold"`
		IdleTimeout      string `yaml:"idle_timeout"`
		BootstrapTimeout string `yaml:"bootstrap_timeout"`
	} `yaml:"session"`

	Retry struct {
		MaxRetries int    `yaml:"max_retries"`
		BaseDelay  string `yaml:"base_delay"`
		MaxDelay   string `yaml:"max_delay"`
	} `yaml:"retry"`

	Bus struct {
		Transport    string   `yaml:"transport"`
		Channel      string   `yaml:"channel"`
		RabbitMQURL  string   `yaml:"rabbitmq_url"`
		KafkaBrokers []string `yaml:"kafka_brokers"`
		KafkaTopic   string   `yaml:"kafka_topic"`
	} `yaml:"bus"`

	Storage struct {
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"`
	} `yaml:"storage"`

	Backend struct {
		Kind         string   `yaml:"kind"`
		Issuer       string   `yaml:"issuer"`
		TokenURL     string   `yaml:"token_url"`
		ClientID     string   `yaml:"client_id"`
		ClientSecret string   `yaml:"client_secret"`
		Scopes       []string `yaml:"scopes"`
		ProfilesDSN  string   `yaml:"profiles_dsn"`
	} `yaml:"backend"`
}
