package controller

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/nerrad567/venstar-bridge/internal/events"
	"github.com/nerrad567/venstar-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/venstar-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/venstar-bridge/internal/reflector"
	"github.com/nerrad567/venstar-bridge/internal/thermostat"
)

// handleMessage is the MQTT handler for every command topic. Returned errors
// are logged by the MQTT client.
func (b *Bridge) handleMessage(topic string, payload []byte) error {
	address, ok := mqtt.ParseCommandTopic(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}

	msg, err := ParseCommand(payload)
	if err != nil {
		return err
	}

	b.logDebug("received command", "address", address, "command_id", msg.ID, "command", msg.Command)

	ctx, cancel := context.WithTimeout(b.ctx, b.commandTimeout)
	defer cancel()

	if err := b.Command(ctx, address, msg); err != nil {
		// Rejections and device errors are already reported as events.
		b.logDebug("command not applied", "address", address, "command", msg.Command, "error", err)
	}
	return nil
}

// Command executes a command addressed to a thermostat or to the controller
// node itself.
func (b *Bridge) Command(ctx context.Context, address string, msg CommandMessage) error {
	if address == mqtt.ControllerAddress {
		return b.controllerCommand(ctx, msg)
	}
	return b.validator.Execute(ctx, address, msg.ValidatorCommand())
}

func (b *Bridge) controllerCommand(ctx context.Context, msg CommandMessage) error {
	switch msg.Command {
	case CmdDiscover:
		_, err := b.Discover(ctx)
		return err
	case CmdSetLogLevel:
		if msg.Value == nil || *msg.Value != math.Trunc(*msg.Value) {
			return fmt.Errorf("%w: value must be an integer", ErrInvalidLogLevel)
		}
		return b.SetLogLevel(ctx, int(*msg.Value))
	default:
		err := fmt.Errorf("%w: %s", ErrUnknownCommand, msg.Command)
		b.report(ctx, events.New(events.KindCommandValidationFailure, mqtt.ControllerAddress, msg.Command, err.Error()))
		return err
	}
}

// SetLogLevel applies a controller log level, persists it and reflects it
// on the controller node.
func (b *Bridge) SetLogLevel(ctx context.Context, level int) error {
	slogLevel, ok := logging.FromControllerLevel(level)
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidLogLevel, level)
	}
	if b.levels != nil {
		b.levels.SetLevel(slogLevel)
	}
	if err := b.registry.SetSetting(ctx, settingLogLevel, strconv.Itoa(level)); err != nil {
		b.logError("failed to persist log level", err)
	}
	b.logInfo("log level changed", "level", slogLevel.String())
	b.publishController(ctx)
	return nil
}

// restoreLogLevel applies the persisted controller log level, if any.
func (b *Bridge) restoreLogLevel(ctx context.Context) {
	if b.levels == nil {
		return
	}
	raw, err := b.registry.Setting(ctx, settingLogLevel)
	if err != nil {
		if !errors.Is(err, thermostat.ErrSettingNotFound) {
			b.logError("failed to read saved log level", err)
		}
		return
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		b.logWarn("ignoring saved log level", "value", raw)
		return
	}
	if level, ok := logging.FromControllerLevel(n); ok {
		b.levels.SetLevel(level)
		b.logInfo("restored log level", "level", level.String())
	}
}

// publishController reflects the controller node: ST is 1 while the bridge
// runs and GV20 is the current log level.
func (b *Bridge) publishController(ctx context.Context) {
	if b.publisher == nil {
		return
	}
	attrs := []reflector.Attribute{{Driver: reflector.DriverTemp, Value: 1, UOM: reflector.UOMBool}}
	if b.levels != nil {
		attrs = append(attrs, reflector.Attribute{
			Driver: DriverLogLevel,
			Value:  float64(logging.ToControllerLevel(b.levels.Level())),
			UOM:    reflector.UOMIndex,
		})
	}
	b.publisher.PublishUpdate(ctx, reflector.Update{
		Address:    mqtt.ControllerAddress,
		Attributes: attrs,
		Timestamp:  nowUTC(),
	})
}
