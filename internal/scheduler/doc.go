// Package scheduler starts campaign runs from cron schedules in serve mode.
//
// Runs are serialized: the delivery gateway is a single channel, so at most
// one campaign runs at a time. A trigger for a campaign that is already
// running or waiting is dropped with a warning.
package scheduler
