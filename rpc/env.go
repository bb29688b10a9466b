package rpc

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/kongzii/open-autonomy/abciapp"
	"github.com/kongzii/open-autonomy/libs/metric"
	"github.com/kongzii/open-autonomy/store"
)

var (
	env  *Environment
	json = jsoniter.ConfigCompatibleWithStandardLibrary
)

func SetEnvironment(e *Environment) {
	env = e
}

type Environment struct {
	Bridge *abciapp.Bridge
	Store  *store.Store

	MetricSet *metric.MetricSet
}
