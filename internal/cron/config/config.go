package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Mutation queue replay, every minute; empty disables it
	CronScheduleMutationQueue string `env:"CRON_SCHEDULE_MUTATION_QUEUE" envDefault:"30 * * * * *"`
}
