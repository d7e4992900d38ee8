// Package registry — runner.go запускает внешние скрипты реестра.
// Контракт узкий: успех = код выхода 0, stdout — JSON или голый
// идентификатор, stderr — диагностика. Всё остальное — ScriptError.
package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// ScriptError — внешний скрипт завершился неуспешно или не ответил вовремя.
// Полная диагностика уходит в лог; пользователю показывается общий текст.
type ScriptError struct {
	Cmd      string
	ExitCode int
	Stderr   string
	Err      error // таймаут/невозможность запуска
}

func (e *ScriptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("скрипт %s: %v", e.Cmd, e.Err)
	}
	return fmt.Sprintf("скрипт %s завершился с кодом %d: %s", e.Cmd, e.ExitCode, e.Stderr)
}

func (e *ScriptError) Unwrap() error { return e.Err }

// EchoFunc дублирует сырой вывод скрипта в чат (режим verbose).
// Ошибки доставки здесь никого не интересуют.
type EchoFunc func(text string)

// Runner выполняет скрипты с таймаутом.
type Runner struct {
	scriptsPath string
	timeout     time.Duration
	verbose     bool
	echo        EchoFunc // может быть nil
}

// NewRunner создаёт раннер скриптов.
func NewRunner(scriptsPath string, timeout time.Duration, verbose bool) *Runner {
	return &Runner{
		scriptsPath: scriptsPath,
		timeout:     timeout,
		verbose:     verbose,
	}
}

// WithEcho возвращает копию раннера, дублирующую вывод через echo.
// Используется обработчиками, когда включён verbose-режим.
func (r *Runner) WithEcho(echo EchoFunc) *Runner {
	clone := *r
	clone.echo = echo
	return &clone
}

// Run выполняет <scripts>/<rel> с аргументами и возвращает stdout.
// Зависший скрипт убивается по таймауту — иначе встал бы весь диалог чата.
func (r *Runner) Run(ctx context.Context, rel string, args ...string) (string, error) {
	script := r.scriptsPath + "/" + rel

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	log.WithFields(log.Fields{
		"script": rel,
		"args":   strings.Join(args, " "),
	}).Debug("Запуск скрипта")

	cmd := exec.CommandContext(runCtx, script, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	out := strings.TrimSpace(stdout.String())
	errOut := strings.TrimSpace(stderr.String())

	if r.verbose && r.echo != nil {
		combined := out
		if errOut != "" {
			if combined != "" {
				combined += "\n"
			}
			combined += errOut
		}
		if combined != "" {
			r.echo("<pre>" + combined + "</pre>")
		}
	}

	if err != nil {
		serr := &ScriptError{Cmd: rel, ExitCode: -1, Stderr: errOut}
		var exitErr *exec.ExitError
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			serr.Err = fmt.Errorf("таймаут %s: %w", r.timeout, runCtx.Err())
		case errors.As(err, &exitErr):
			serr.ExitCode = exitErr.ExitCode()
		default:
			serr.Err = err
		}
		log.WithFields(log.Fields{
			"script": rel,
			"exit":   serr.ExitCode,
			"stderr": errOut,
		}).Error("Скрипт завершился с ошибкой")
		return "", serr
	}

	log.WithField("script", rel).Debug("Скрипт выполнен")
	return out, nil
}
