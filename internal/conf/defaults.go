// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "kvmsync")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/kvmsync.log")
	viper.SetDefault("main.log.rotation", RotationDaily)
	viper.SetDefault("main.log.maxsize", 1048576)

	viper.SetDefault("ofdb.url", "https://api.ofdb.io/v0")
	viper.SetDefault("ofdb.limit", 2000)
	viper.SetDefault("ofdb.maxretries", 10)
	viper.SetDefault("ofdb.retrydelay", 5)
	viper.SetDefault("ofdb.concurrency", 10)
	viper.SetDefault("ofdb.timeout", 10)
	viper.SetDefault("ofdb.chunksize", 100)

	viper.SetDefault("areas", []map[string]any{})

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "kvmsync.db")

	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "kvmsync")
	viper.SetDefault("output.mysql.password", "secret")
	viper.SetDefault("output.mysql.database", "kvmsync")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", 3306)

	viper.SetDefault("schedules.fullsync.enabled", true)
	viper.SetDefault("schedules.fullsync.interval", 1440)
	viper.SetDefault("schedules.recentsync.enabled", true)
	viper.SetDefault("schedules.recentsync.interval", 60)
	viper.SetDefault("schedules.dailydigest.enabled", false)
	viper.SetDefault("schedules.dailydigest.interval", 1440)
	viper.SetDefault("schedules.weeklydigest.enabled", false)
	viper.SetDefault("schedules.weeklydigest.interval", 10080)
	viper.SetDefault("schedules.monthlydigest.enabled", false)
	viper.SetDefault("schedules.monthlydigest.interval", 43200)

	viper.SetDefault("email.enabled", false)
	viper.SetDefault("email.domain", "mail.kartevonmorgen.org")
	viper.SetDefault("email.apikey", "")
	viper.SetDefault("email.url", "https://api.eu.mailgun.net/v3")
	viper.SetDefault("email.sender", "no-reply@kartevonmorgen.org")
	viper.SetDefault("email.ratelimit", 60)
	viper.SetDefault("email.maxretries", 3)
	viper.SetDefault("email.retrydelay", 2)
	viper.SetDefault("email.activationurl", "https://kartevonmorgen.org/subscriptions/activate")
	viper.SetDefault("email.unsubscribeurl", "https://kartevonmorgen.org/subscriptions/unsubscribe")

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")

	viper.SetDefault("webserver.log.enabled", false)
	viper.SetDefault("webserver.log.path", "logs/webapi.log")
	viper.SetDefault("webserver.log.rotation", RotationDaily)
	viper.SetDefault("webserver.log.maxsize", 1048576)
}
