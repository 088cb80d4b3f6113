package assistant

import (
	"fmt"
	"strings"
)

const chatSystemPrompt = `You are an expert in interior design and residential real estate.
Help users with questions about:
- apartment layouts
- interior design
- choosing furniture
- renovation and finishing
- budget planning

Answer practically, with concrete advice and examples.`

func floorPlanPrompt(roomType, additionalInfo string) string {
	var b strings.Builder
	b.WriteString(`Analyze this apartment floor plan and return JSON with:
1. The number of rooms
2. The approximate total area
3. A list of rooms with type and approximate area
4. Recommendations for improving the layout
5. Renovation opportunities
`)
	if roomType != "" {
		fmt.Fprintf(&b, "\nPay particular attention to the %s.\n", roomType)
	}
	if additionalInfo != "" {
		fmt.Fprintf(&b, "\nAdditional information from the client: %s\n", additionalInfo)
	}
	b.WriteString(`
Return the answer in this JSON format:
{
    "rooms_detected": number,
    "total_area": number,
    "rooms": [{"type": "type", "area": number, "description": "description"}],
    "suggestions": ["suggestion1", "suggestion2"],
    "renovation_ideas": ["idea1", "idea2"],
    "estimated_cost": {"min": number, "max": number}
}`)
	return b.String()
}

func suggestionsPrompt(roomType, style string, budget int) string {
	return fmt.Sprintf(`Create design proposals for a %s in %s style with a budget of %d.

Return JSON with:
- a colour scheme
- recommended furniture
- finishing materials
- an approximate estimate
- layout ideas

Format:
{
    "color_scheme": ["colour1", "colour2", "colour3"],
    "furniture": [{"item": "name", "price": number, "description": "description"}],
    "materials": [{"type": "type", "price_per_sqm": number, "description": "description"}],
    "total_estimate": number,
    "layout_ideas": ["idea1", "idea2"]
}`, roomType, style, budget)
}

// MockFloorPlanAnalysis is the demo analysis served when the model is unavailable.
func MockFloorPlanAnalysis() *FloorPlanAnalysis {
	return &FloorPlanAnalysis{
		RoomsDetected: 3,
		TotalArea:     75.5,
		Rooms: []Room{
			{Type: "living room", Area: 25.0, Description: "Spacious room with large windows"},
			{Type: "bedroom", Area: 18.5, Description: "Cosy bedroom with space for a wardrobe"},
			{Type: "kitchen", Area: 12.0, Description: "Compact kitchen that can be extended"},
			{Type: "bathroom", Area: 6.0, Description: "Standard bathroom"},
			{Type: "hallway", Area: 8.0, Description: "Entrance area with shoe storage"},
			{Type: "balcony", Area: 6.0, Description: "Glazed balcony"},
		},
		Suggestions: []string{
			"Consider merging the kitchen with the living room to gain space",
			"Add a partition in the bedroom to create a work area",
			"Use light tones to make the space feel larger",
			"Install built-in wardrobes to save space",
		},
		RenovationIdeas: []string{
			"Move the wall between the kitchen and the living room",
			"Create a walk-in closet in the bedroom",
			"Combine the bathroom and toilet",
			"Insulate and glaze the balcony",
		},
		EstimatedCost: CostRange{Min: 800000, Max: 1500000},
		Mock:          true,
	}
}

// MockDesignSuggestions is the demo proposal served when the model is unavailable.
func MockDesignSuggestions() *DesignSuggestions {
	return &DesignSuggestions{
		ColorScheme: []string{"#F5F5F5", "#667EEA", "#764BA2"},
		Furniture: []FurnitureItem{
			{Item: "Corner sofa", Price: 85000, Description: "Comfortable Scandinavian-style sofa"},
			{Item: "Coffee table", Price: 25000, Description: "Glass table with wooden legs"},
			{Item: "Shelving unit", Price: 35000, Description: "Modular shelving for books and decor"},
		},
		Materials: []Material{
			{Type: "Laminate", PricePerSqm: 2500, Description: "Quality floor covering"},
			{Type: "Paint", PricePerSqm: 350, Description: "Eco-friendly wall paint"},
			{Type: "Tile", PricePerSqm: 1800, Description: "Ceramic bathroom tile"},
		},
		TotalEstimate: 450000,
		LayoutIdeas: []string{
			"Place the sofa by the window for natural light",
			"Create a work zone in the corner of the room",
			"Use mirrors to visually expand the space",
		},
		Mock: true,
	}
}

type keywordReply struct {
	keywords []string
	reply    string
}

// Checked in order; the first matching keyword wins.
var keywordReplies = []keywordReply{
	{[]string{"hello", "hi ", "hey", "good morning", "good evening"},
		"Hello! I'm your interior design assistant. Tell me about the room you're working on and I'll help with layout, furniture and materials."},
	{[]string{"price", "cost", "budget", "how much", "estimate"},
		"Plan your budget with a 20-30% reserve for unexpected expenses. For a typical living room, expect furniture to take about half of the budget and finishing materials about a third."},
	{[]string{"style", "modern", "scandinavian", "minimalist", "loft", "classic"},
		"Pick one leading style and keep it consistent: modern favours clean lines and neutral tones, Scandinavian adds light wood and textiles, loft works with brick, metal and open space."},
	{[]string{"layout", "floor plan"},
		"For an optimal layout, consider natural light and functional zones first."},
	{[]string{"furniture", "sofa", "table"},
		"When choosing furniture, start from the room's dimensions and your lifestyle."},
	{[]string{"color", "colour", "palette"},
		"Use the 60-30-10 rule to keep colours in balance."},
	{[]string{"light", "lamp"},
		"Combine general, task and accent lighting."},
}

const defaultMockReply = "Tell me more about your project and I'll help with specific recommendations."

// MockChatReply answers from a fixed keyword table.
func MockChatReply(message string) string {
	m := strings.ToLower(message) + " "
	for _, kr := range keywordReplies {
		for _, k := range kr.keywords {
			if strings.Contains(m, k) {
				return kr.reply
			}
		}
	}
	return defaultMockReply
}
