// Package process supervises the link-layer agent: the child process that
// consumes handsfree/command/... and drives the Bluetooth radio.
//
// The supervisor starts the agent, logs its output, and restarts it with
// exponential backoff when it exits. A run that lasts longer than
// Config.StableAfter resets the backoff. Every unexpected exit is reported
// through Config.OnExit, which the service uses to release headset links
// the dead agent can no longer confirm.
//
// Shutdown signals the agent's whole process group with SIGTERM and
// escalates to SIGKILL after Config.StopTimeout.
//
//	sup, err := process.New(process.Config{
//	    Name:   "link-agent",
//	    Binary: "/usr/lib/handsfree/link-agent",
//	    OnExit: func(err error) { ... },
//	})
//	if err := sup.Start(ctx); err != nil {
//	    return err
//	}
//	defer sup.Stop()
package process
