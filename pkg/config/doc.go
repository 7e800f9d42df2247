// Package config provides configuration management for connpool.
//
// Two kinds of configuration exist:
//
//   - Settings: process wide settings (logging, naming store, metrics,
//     tracing, password aliases, compatibility switches) loaded through
//     viper from an optional YAML file and CONNPOOL_* environment variables.
//   - Resources: the pools and resources to manage, loaded from a YAML file
//     with ${VAR_NAME} environment substitution.
//
// # Usage
//
// ## Loading settings
//
//	settings, err := config.LoadSettings("connpool.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// ## Loading resources
//
//	resources, err := config.LoadResources("pools.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	for _, p := range resources.Pools {
//		desc, err := p.Descriptor()
//		...
//	}
//
// ## Resources file
//
//	pools:
//	  - name: orders-pool
//	    adapter: postgresql
//	    transaction_support: LocalTransaction
//	    steady_pool_size: 4
//	    max_pool_size: 16
//	    idle_timeout: 5m
//	    properties:
//	      - name: URL
//	        value: postgres://localhost:5432/orders
//	      - name: USER
//	        value: ${ORDERS_USER}
//	      - name: PASSWORD
//	        value: ${ALIAS=orders-password}
//	resources:
//	  - name: jdbc/orders
//	    pool: orders-pool
//
// Pool entries start from the defaults of NewPoolConfig, so omitted fields
// keep their default values rather than the Go zero value.
package config
