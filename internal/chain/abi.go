package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// DiceABI is the ABI of the dice contract served by the oracle.
const DiceABI = `[
	{"inputs":[{"internalType":"uint256","name":"_number","type":"uint256"}],"name":"fulfillRoll","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[],"name":"requestRoll","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[],"stateMutability":"nonpayable","type":"constructor"},
	{"anonymous":false,"inputs":[{"indexed":false,"internalType":"uint256","name":"result","type":"uint256"}],"name":"RollFulfilled","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":false,"internalType":"address","name":"requester","type":"address"}],"name":"RollRequested","type":"event"},
	{"inputs":[],"name":"isRolling","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"lastResult","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"oracle","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

// Contract method names.
const (
	MethodFulfillRoll = "fulfillRoll"
	MethodIsRolling   = "isRolling"
	MethodLastResult  = "lastResult"
	MethodOracle      = "oracle"
)

var diceABI = mustParseABI(DiceABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse dice abi: %v", err))
	}
	return parsed
}
