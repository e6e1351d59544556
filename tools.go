//go:build tools

// Package panel_lab pins mockgen, used by the go:generate directives that
// produce the mocks/ package.
package panel_lab

import (
	_ "go.uber.org/mock/mockgen"
)
