package store

import "time"

// seed returns the demo records both backends start with. The SQLite seed
// migration mirrors these rows.
func seed(now time.Time) ([]Task, []Client, []Design, []Interaction) {
	day := 24 * time.Hour

	tasks := []Task{
		{
			ID:          "1",
			Title:       "Analyze floor plan for apartment on 5th Ave",
			Description: "Client wants modern renovation of 3-bedroom apartment",
			Priority:    "high",
			Category:    "analysis",
			CreatedAt:   now,
			DueDate:     ptr(now.Add(2 * day)),
		},
		{
			ID:          "2",
			Title:       "Generate kitchen design concepts",
			Description: "Modern minimalist kitchen for the Johnson family",
			Priority:    "medium",
			Category:    "design",
			Completed:   true,
			CreatedAt:   now,
		},
		{
			ID:          "3",
			Title:       "Client meeting with Sarah Wilson",
			Description: "Discuss bathroom renovation budget and timeline",
			Priority:    "high",
			Category:    "client",
			CreatedAt:   now,
			DueDate:     ptr(now.Add(day)),
		},
	}

	clients := []Client{
		{
			ID:            "1",
			Name:          "Sarah Wilson",
			Email:         "sarah@example.com",
			Phone:         ptr("+1-555-0123"),
			Company:       ptr("Wilson Properties"),
			ProjectsCount: 3,
			LastContact:   ptr(now.Add(-2 * day)),
			Tags:          []string{"VIP", "Referral Source"},
		},
		{
			ID:            "2",
			Name:          "Johnson Family",
			Email:         "johnsons@example.com",
			Phone:         ptr("+1-555-0456"),
			ProjectsCount: 1,
			LastContact:   ptr(now.Add(-5 * day)),
			Tags:          []string{"First-time Client"},
		},
	}

	designs := []Design{
		{
			ID:          "1",
			Title:       "Modern Living Room",
			Description: "Minimalist design with natural light",
			ImageURL:    "/api/placeholder/400/300",
			Style:       "modern",
			RoomType:    "living",
			CreatedAt:   now,
			IsFavorite:  true,
			ClientID:    ptr("1"),
			Tags:        []string{"minimalist", "natural light"},
		},
		{
			ID:          "2",
			Title:       "Scandinavian Kitchen",
			Description: "Clean lines and functional design",
			ImageURL:    "/api/placeholder/400/300",
			Style:       "scandinavian",
			RoomType:    "kitchen",
			CreatedAt:   now,
			ClientID:    ptr("2"),
			Tags:        []string{"functional", "clean"},
		},
	}

	interactions := []Interaction{
		{
			ID:              "1",
			ClientID:        "1",
			InteractionType: "meeting",
			Title:           "Initial consultation",
			Description:     "Discussed project requirements and budget",
			CreatedAt:       now.Add(-3 * day),
			Outcome:         ptr("Approved initial design concepts"),
			NextAction:      ptr("Schedule design presentation"),
		},
		{
			ID:              "2",
			ClientID:        "1",
			InteractionType: "email",
			Title:           "Design revisions",
			Description:     "Client requested changes to kitchen layout",
			CreatedAt:       now.Add(-day),
			Outcome:         ptr("Revisions documented"),
			NextAction:      ptr("Update 3D renderings"),
		},
	}

	return tasks, clients, designs, interactions
}
