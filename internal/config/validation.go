package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate 使用 struct tag 校验配置，并补充 tag 无法表达的规则。
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	if cfg.Kafka.Enabled() && cfg.Kafka.TaskTopic == cfg.Kafka.Topic {
		return fmt.Errorf("kafka: task_topic must differ from topic %q", cfg.Kafka.Topic)
	}
	return nil
}

// formatValidationError 只返回第一条校验错误，并带上字段路径。
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
