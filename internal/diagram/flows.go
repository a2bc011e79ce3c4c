package diagram

// Palette shared by the flows.
const (
	green      = "#4CAF50"
	blue       = "#2196F3"
	orange     = "#FFA726"
	purple     = "#7B1FA2"
	deepOrange = "#FF5722"
	violet     = "#9C27B0"
	amber      = "#FFC107"
	pink       = "#E91E63"
	brown      = "#795548"
)

func light(id, label, fill string) Node { return Node{ID: id, Label: label, Fill: fill, FontColor: "white"} }
func dark(id, label, fill string) Node  { return Node{ID: id, Label: label, Fill: fill, FontColor: "black"} }

var deploymentFlow = Flow{
	Key:     "deployment",
	Name:    "deployment_flow",
	File:    "deployment_flow",
	Comment: "Contract Deployment Flow",
	RankDir: "TB",
	Splines: "ortho",
	Nodes: []Node{
		light("deployment", "Deployment\nManager", orange),
		light("xao_token", "XAO Token\nERC20", green),
		light("governance", "Governance\nDAO Control", green),
		light("treasury", "Treasury\nFund Management", green),
		light("factory", "Factory Layer\nContract Generation", blue),
		light("event_factory", "Event Factory\nEvent Creation", purple),
		light("artist_factory", "Artist Factory\nArtist Management", purple),
	},
	Edges: []Edge{
		{"deployment", "xao_token", "Deploy & Initialize"},
		{"deployment", "governance", "Set Permissions"},
		{"deployment", "factory", "Configure"},
		{"deployment", "treasury", "Set Parameters"},
		{"factory", "event_factory", "Generate"},
		{"factory", "artist_factory", "Generate"},
	},
}

var eventCreationFlow = Flow{
	Key:     "event_creation",
	Name:    "event_creation",
	File:    "event_creation_flow",
	Comment: "Event Creation Flow",
	RankDir: "LR",
	Splines: "curved",
	Nodes: []Node{
		light("owner", "Event Owner\nInitiates Creation", deepOrange),
		light("event_factory", "Event Factory\nGenerates Contracts", blue),
		light("parent_event", "Parent Event\nMain Contract", green),
		light("event_explorer", "Event Explorer\nTracking System", violet),
		light("artist_factory", "Artist Factory\nArtist Management", blue),
		light("artist_contract", "Artist Contract\nPerformance Control", green),
	},
	Edges: []Edge{
		{"owner", "event_factory", "Create Event Request"},
		{"event_factory", "parent_event", "Deploy Contract"},
		{"parent_event", "event_explorer", "Register Event"},
		{"event_explorer", "artist_factory", "Request Artists"},
		{"artist_factory", "artist_contract", "Generate Contracts"},
	},
}

var ticketSalesFlow = Flow{
	Key:     "ticket_sales",
	Name:    "ticket_sales",
	File:    "ticket_sales_flow",
	Comment: "Ticket Sales Flow",
	RankDir: "LR",
	Splines: "curved",
	Nodes: []Node{
		light("buyer", "Ticket Buyer\nPurchase Request", deepOrange),
		light("parent_event", "Parent Event\nContract\nValidation & Minting", green),
		dark("nft", "NFT Ticket\nERC1155/721\nOwnership Proof", amber),
		light("explorer", "Event Explorer\nSales Tracking", violet),
		dark("token", "XAO Token\nPayment System", amber),
	},
	Edges: []Edge{
		{"buyer", "parent_event", "Purchase Request"},
		{"parent_event", "nft", "Mint Ticket"},
		{"parent_event", "explorer", "Update Status"},
		{"nft", "token", "Process Payment"},
	},
}

var revenueFlow = Flow{
	Key:     "revenue",
	Name:    "revenue_distribution",
	File:    "revenue_flow",
	Comment: "Revenue Distribution Flow",
	RankDir: "LR",
	Splines: "curved",
	Nodes: []Node{
		light("ticket_sale", "Ticket Sale\nRevenue Source", deepOrange),
		light("parent_event", "Parent Event\nContract\nRevenue Collection", green),
		dark("treasury", "XAO Treasury\nFund Management", amber),
		light("splitter", "Revenue Splitter\nDistribution Logic", blue),
		light("escrow", "Artist Escrow\nSecure Payments", violet),
	},
	Edges: []Edge{
		{"ticket_sale", "parent_event", "Sale Revenue"},
		{"parent_event", "treasury", "Collect Funds"},
		{"treasury", "splitter", "Calculate Shares"},
		{"splitter", "escrow", "Distribute Revenue"},
	},
}

var arbitrationFlow = Flow{
	Key:     "arbitration",
	Name:    "arbitration",
	File:    "arbitration_flow",
	Comment: "Arbitration Flow",
	RankDir: "LR",
	Splines: "curved",
	Nodes: []Node{
		light("parties", "Artist/Venue\nDispute Initiators", deepOrange),
		light("dispute", "Dispute Filing\nContract Details", blue),
		light("evidence", "Evidence Collection\n5-Day Window", blue),
		dark("ipfs", "IPFS Storage\nSecure Evidence", amber),
		light("ai_review", "AI Review\nContract Analysis", green),
		light("decision", "Resolution Options\n- Full Payment\n- Partial Payment\n- Refund\n- Penalties", violet),
		light("appeal", "Appeal Window\n2-Day Period", violet),
		light("ticket_refund", "Ticket Refunds\nBatch Processing", pink),
		light("execution", "Payment Execution\nFund Distribution", brown),
	},
	Edges: []Edge{
		{"parties", "dispute", "File Claim"},
		{"dispute", "evidence", "Submit Evidence"},
		{"evidence", "ipfs", "Store Securely"},
		{"ipfs", "ai_review", "Analyze Contract Terms"},
		{"ai_review", "decision", "Generate Decision"},
		{"decision", "appeal", "Challenge Decision"},
		{"decision", "ticket_refund", "If Event Disrupted"},
		{"ticket_refund", "execution", "Process Refunds"},
		{"appeal", "execution", "Process Payments"},
		{"decision", "execution", "Accept Decision"},
	},
}

// Flows returns the five platform flows in render order.
func Flows() []Flow {
	return []Flow{deploymentFlow, eventCreationFlow, ticketSalesFlow, revenueFlow, arbitrationFlow}
}

// Lookup finds a flow by key (e.g. "revenue") or output file name.
func Lookup(name string) (Flow, bool) {
	for _, f := range Flows() {
		if f.Key == name || f.File == name {
			return f, true
		}
	}
	return Flow{}, false
}
