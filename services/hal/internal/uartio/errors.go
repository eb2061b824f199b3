package uartio

import "temppair-go/errcode"

var errNoPort error = errcode.InvalidParams
