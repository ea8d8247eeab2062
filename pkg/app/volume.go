package app

import (
	"github.com/deploymenttheory/go-uffs/internal/config"
	"github.com/deploymenttheory/go-uffs/internal/services"
)

// LoadConfig reads the target's config file, or the search path when none
// is given, and applies the image path override
func LoadConfig(target ImageTarget) (*config.Config, error) {
	cfg, err := config.Load(target.ConfigPath)
	if err != nil {
		return nil, NewError(ErrCodeInvalidInput, "failed to load configuration", err)
	}
	if target.ImagePath != "" {
		cfg.Device.ImagePath = target.ImagePath
	}
	return cfg, nil
}

// OpenVolume mounts the image selected by target
func OpenVolume(ctx *Context, target ImageTarget) (*services.Volume, error) {
	cfg, err := LoadConfig(target)
	if err != nil {
		return nil, err
	}
	ctx.Log("Opening " + cfg.Device.ImagePath)
	v, err := services.OpenImage(ctx, cfg, ctx.Entry().WithField("image", cfg.Device.ImagePath))
	if err != nil {
		return nil, NewError(ErrCodeImageAccess, "failed to open image "+cfg.Device.ImagePath, err)
	}
	return v, nil
}
