package main

import (
	"errors"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
)

func TestInterfaceRowsKeepOrder(t *testing.T) {
	names := []string{"can0", "can1", "can2", "can3"}
	failed := map[string]error{
		"can1": errors.New("no such device"),
		"can3": errors.New("operation not permitted"),
	}
	rows := interfaceRows(names, failed)
	assert.Equal(t, pterm.TableData{
		{"Interface", "State", "Error"},
		{"can0", "UP", ""},
		{"can1", "DOWN", "no such device"},
		{"can2", "UP", ""},
		{"can3", "DOWN", "operation not permitted"},
	}, rows)
}
