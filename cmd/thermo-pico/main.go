//go:build rp2040 || rp2350

// Command thermo-pico is the receiver firmware: EnOcean radio on a UART,
// pairing button, address table in SPI flash.
package main

import (
	"context"
	"time"

	"temppair-go/bus"
	"temppair-go/services/addrstore"
	"temppair-go/services/config"
	"temppair-go/services/hal"
	"temppair-go/services/heartbeat"
	"temppair-go/services/thermo"
	"temppair-go/x/shmring"
)

const device = "pico-thermo"

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("[main] boot", device)

	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, device)

	cfg, err := config.Load(device)
	if err != nil {
		println("[main] Warn: config:", err.Error(), "- using defaults")
		cfg = config.Defaults()
	}

	board := hal.PicoThermo

	// Address table. A flash failure is not fatal: the store then lives in
	// RAM for this boot and pairings are lost on reset.
	var medium addrstore.Medium
	if flash, err := hal.OpenFlash(board); err != nil {
		println("[main] Warn: flash:", err.Error(), "- pairings will not persist")
		medium = addrstore.NewRAM(board.FlashRegionSize)
	} else {
		medium = flash
	}
	store, rec, err := addrstore.Open(medium, addrstore.Options{Capacity: cfg.Store.Capacity})
	if err != nil {
		println("[main] Warn: store:", err.Error())
		store, rec, _ = addrstore.Open(addrstore.NewRAM(board.FlashRegionSize), addrstore.Options{Capacity: cfg.Store.Capacity})
	}

	b := bus.NewBus(8)
	ring := shmring.New(1024)

	ports, err := hal.OpenPorts(board)
	if err != nil {
		println("[main] Warn: ports:", err.Error())
	}
	halSvc := hal.New(ports, ring, hal.Config{
		ButtonActiveLow: board.ButtonActiveLow,
		DebounceMs:      cfg.HAL.DebounceMs,
		MaxChunk:        cfg.HAL.MaxChunk,
		RadioResetMs:    cfg.HAL.RadioResetMs,
	})
	if err := halSvc.Start(ctx, b.NewConnection("hal")); err != nil {
		println("[main] Warn: hal:", err.Error())
	}

	config.NewConfigService().Start(ctx, b.NewConnection("config"))
	hb := &heartbeat.Service{HAL: halSvc.Stats}
	_ = hb.Start(ctx, b.NewConnection("heartbeat"))

	core := thermo.New(ring, store, rec, b.NewConnection("thermo"), thermo.FromSection(cfg.Thermo))
	println("[main] running")
	if err := core.Run(ctx); err != nil {
		println("[main] Warn: core stopped:", err.Error())
	}
	select {}
}
