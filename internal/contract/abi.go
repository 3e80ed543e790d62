package contract

// Method and event names of the IndulgencePortal contract.
const (
	methodGetAllSins = "getAllSins"
	methodConfess    = "confess"
	eventNewSin      = "NewSin"
)

// GasLimit is the fixed gas ceiling for confess transactions.
const GasLimit = 300000

// PortalABI is the ABI of the IndulgencePortal contract.
const PortalABI = `[
  {"inputs":[],"stateMutability":"nonpayable","type":"constructor"},
  {"anonymous":false,"inputs":[
    {"indexed":true,"internalType":"address","name":"from","type":"address"},
    {"indexed":false,"internalType":"uint256","name":"timestamp","type":"uint256"},
    {"indexed":false,"internalType":"string","name":"message","type":"string"}
  ],"name":"NewSin","type":"event"},
  {"inputs":[{"internalType":"string","name":"_sin","type":"string"}],"name":"confess","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[],"name":"getAllSins","outputs":[
    {"components":[
      {"internalType":"address","name":"sinner","type":"address"},
      {"internalType":"string","name":"sin","type":"string"},
      {"internalType":"uint256","name":"timestamp","type":"uint256"}
    ],"internalType":"struct IndulgencePortal.Sin[]","name":"","type":"tuple[]"}
  ],"stateMutability":"view","type":"function"}
]`
