package core

import (
	"errors"
)

var (
	// ErrSwapchainOutOfDate is recoverable: rebuild the surface dependent state and retry.
	ErrSwapchainOutOfDate = errors.New("swapchain out of date")
	ErrDeviceLost         = errors.New("device lost")
	ErrAllocationFailed   = errors.New("resource allocation failed")
	ErrPipelineCreation   = errors.New("pipeline creation failed")
	ErrBindingIncomplete  = errors.New("binding set has unwritten slots")
	ErrUnknown            = errors.New("unknown")
)
