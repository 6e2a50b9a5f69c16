package chain

// coordinatorABIJSON is the ABI surface of the on-chain split coordinator
// contract this gateway talks to: createSplit/settleSplit plus the
// SplitCreated event used to recover the on-chain split id from a receipt.
const coordinatorABIJSON = `[
	{
		"type": "function",
		"name": "createSplit",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "payer", "type": "address"},
			{"name": "token", "type": "address"},
			{"name": "legs", "type": "tuple[]", "components": [
				{"name": "participant", "type": "address"},
				{"name": "amount", "type": "uint256"}
			]},
			{"name": "deadline", "type": "uint256"},
			{"name": "metaHash", "type": "bytes32"}
		],
		"outputs": [{"name": "splitId", "type": "uint256"}]
	},
	{
		"type": "function",
		"name": "settleSplit",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "splitId", "type": "uint256"},
			{"name": "participants", "type": "address[]"},
			{"name": "amounts", "type": "uint256[]"},
			{"name": "deadlines", "type": "uint256[]"},
			{"name": "salts", "type": "bytes32[]"},
			{"name": "vs", "type": "uint8[]"},
			{"name": "rs", "type": "bytes32[]"},
			{"name": "ss", "type": "bytes32[]"}
		],
		"outputs": []
	},
	{
		"type": "event",
		"name": "SplitCreated",
		"anonymous": false,
		"inputs": [
			{"name": "splitId", "type": "uint256", "indexed": true},
			{"name": "payer", "type": "address", "indexed": true},
			{"name": "token", "type": "address", "indexed": false}
		]
	}
]`

// erc20ABIJSON is the minimal ERC-20 surface the gateway consumes to check
// allowances before a settle is attempted.
const erc20ABIJSON = `[
	{
		"type": "function",
		"name": "allowance",
		"stateMutability": "view",
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "spender", "type": "address"}
		],
		"outputs": [{"name": "", "type": "uint256"}]
	}
]`
