package app

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Context holds application-wide configuration and state
type Context struct {
	context.Context

	// Output preferences
	OutputFormat string
	Verbose      bool
	Quiet        bool

	// Out receives formatted command output
	Out io.Writer

	// Fs is the host filesystem used for put and get
	Fs afero.Fs

	// Logger carries structured log fields into the engine
	Logger *logrus.Logger

	// Progress reporting
	ProgressCallback func(message string, percent int)
}

// NewContext creates a new application context
func NewContext() *Context {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	return &Context{
		Context: context.Background(),
		Out:     os.Stdout,
		Fs:      afero.NewOsFs(),
		Logger:  logger,
	}
}

// ApplyVerbosity sets the log level from the Verbose and Quiet flags
func (c *Context) ApplyVerbosity() {
	switch {
	case c.Quiet:
		c.Logger.SetLevel(logrus.ErrorLevel)
	case c.Verbose:
		c.Logger.SetLevel(logrus.DebugLevel)
	default:
		c.Logger.SetLevel(logrus.WarnLevel)
	}
}

// Entry returns a log entry for the engine
func (c *Context) Entry() *logrus.Entry {
	return logrus.NewEntry(c.Logger)
}

// SetProgress sets the progress callback function
func (c *Context) SetProgress(callback func(string, int)) {
	c.ProgressCallback = callback
}

// Progress reports progress if callback is set
func (c *Context) Progress(message string, percent int) {
	if c.ProgressCallback != nil {
		c.ProgressCallback(message, percent)
	}
}

// Log outputs a message based on verbosity settings
func (c *Context) Log(message string) {
	if !c.Quiet && c.Verbose {
		c.Logger.Info(message)
	}
}

// Error outputs an error message unless quiet
func (c *Context) Error(message string) {
	if !c.Quiet {
		c.Logger.Error(message)
	}
}
