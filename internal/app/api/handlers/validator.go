package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/fatflowers/casperflow/pkg/tool"
)

// RegisterValidators installs the custom binding rules:
//
//	casper_key  hex encoded Casper account public key
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding validator engine %T", binding.Validator.Engine())
	}
	return v.RegisterValidation("casper_key", func(fl validator.FieldLevel) bool {
		return tool.IsCasperPublicKey(fl.Field().String())
	})
}
