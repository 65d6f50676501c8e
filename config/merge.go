package config

// mergeConfigs merges override configuration into base. Scalars and lists set
// in override replace those in base; extension maps are merged one level deep.
func mergeConfigs(base, override *Config) *Config {
	result := *base

	if override.Version != "" {
		result.Version = override.Version
	}

	result.Server = mergeServer(result.Server, override.Server)
	result.Engine = mergeEngine(result.Engine, override.Engine)
	result.Collector = mergeCollector(result.Collector, override.Collector)

	// Merge extensions
	if override.Extensions != nil {
		merged := make(map[string]interface{}, len(base.Extensions)+len(override.Extensions))
		for key, value := range base.Extensions {
			merged[key] = value
		}
		for key, value := range override.Extensions {
			if baseMap, ok := merged[key].(map[string]interface{}); ok {
				if overrideMap, ok := value.(map[string]interface{}); ok {
					mergedMap := make(map[string]interface{}, len(baseMap)+len(overrideMap))
					for k, v := range baseMap {
						mergedMap[k] = v
					}
					for k, v := range overrideMap {
						mergedMap[k] = v
					}
					merged[key] = mergedMap
					continue
				}
			}
			merged[key] = value
		}
		result.Extensions = merged
	}

	return &result
}

func mergeServer(base, override ServerConfig) ServerConfig {
	result := base
	if override.Socket != "" {
		result.Socket = override.Socket
	}
	if override.Address != "" {
		result.Address = override.Address
	}
	if override.StreamBuffer != 0 {
		result.StreamBuffer = override.StreamBuffer
	}
	return result
}

func mergeEngine(base, override EngineConfig) EngineConfig {
	result := base
	if override.QueueSize != 0 {
		result.QueueSize = override.QueueSize
	}
	return result
}

func mergeCollector(base, override CollectorConfig) CollectorConfig {
	result := base
	if override.Enabled != nil {
		result.Enabled = override.Enabled
	}
	if len(override.Roots) > 0 {
		result.Roots = override.Roots
	}
	if len(override.Exclude) > 0 {
		result.Exclude = override.Exclude
	}
	if override.Interval != 0 {
		result.Interval = override.Interval
	}
	if len(override.Revs) > 0 {
		result.Revs = override.Revs
	}
	return result
}
